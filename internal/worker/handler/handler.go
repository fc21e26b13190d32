// Package handler 队列任务的消费端
package handler

import (
	"web3-radar/internal/worker/model"
	"web3-radar/internal/worker/queue"
)

// Register 将各 handler 绑定到任务类型，nil 的 handler 不注册
func Register(router *queue.Router, evaluate *EvaluateHandler, normalize *NormalizeHandler, notify *NotifyHandler) {
	if evaluate != nil {
		router.Handle(model.JOB_EVALUATE_RULES, evaluate.Handle)
	}
	if normalize != nil {
		router.Handle(model.JOB_NORMALIZE_EVENT, normalize.Handle)
	}
	if notify != nil {
		router.Handle(model.JOB_SEND_NOTIFICATION, notify.Handle)
	}
}
