package repo

import (
	"errors"

	"gorm.io/gorm"
)

// isDupKey 依赖 database.NewGorm 打开的 TranslateError，驱动错误码已统一成 ErrDuplicatedKey
func isDupKey(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
