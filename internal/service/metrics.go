package service

import "github.com/prometheus/client_golang/prometheus"

var tagTransitions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tag_request_transitions_total",
		Help: "Tag request state changes by action",
	},
	[]string{"action"},
)

var loginAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{Name: "auth_login_attempts_total", Help: "Login attempts by result"},
	[]string{"result"},
)

func init() { prometheus.MustRegister(tagTransitions, loginAttempts) }
