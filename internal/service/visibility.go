package service

import "docent-tagalong/internal/domain"

// VisibleTo 角色可见性；未知角色一律不可见
func VisibleTo(u domain.User, tr domain.TagRequest) bool {
	switch u.Role {
	case domain.RoleCoordinator:
		return true
	case domain.RoleSeasonedDocent:
		return tr.Status == domain.StatusRequested || tr.FilledBy(u.ID)
	case domain.RoleNewDocent:
		return tr.Status == domain.StatusRequested || tr.NewDocentID == u.ID
	}
	return false
}

// OwnedBy “我的请求”：新讲解员是发起人，资深讲解员是接受人，协调员看全部
func OwnedBy(u domain.User, tr domain.TagRequest) bool {
	switch u.Role {
	case domain.RoleCoordinator:
		return true
	case domain.RoleSeasonedDocent:
		return tr.FilledBy(u.ID)
	case domain.RoleNewDocent:
		return tr.NewDocentID == u.ID
	}
	return false
}

func filter(list []domain.TagRequest, keep func(domain.TagRequest) bool) []domain.TagRequest {
	out := list[:0:0]
	for _, tr := range list {
		if keep(tr) {
			out = append(out, tr)
		}
	}
	return out
}
