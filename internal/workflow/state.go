package workflow

import (
	"fmt"
	"strings"

	"github.com/slw-proton/litellm-adpter-dify/internal/model"
	"github.com/slw-proton/litellm-adpter-dify/pkg/logger"
)

// transition 根据一次状态查询结果推进本地状态
//
// 终态不可再变；TIMED_OUT 只能由客户端在截止时间到达时设置（见 expire）；
// 引擎从 RUNNING 回报 PENDING 时保持 RUNNING
func transition(from, observed model.RunStatus) (model.RunStatus, error) {
	if from.Terminal() {
		return from, fmt.Errorf("run already terminal: %s", from)
	}
	switch observed {
	case model.RunTimedOut:
		return from, fmt.Errorf("status %s is set by the client only", observed)
	case model.RunPending:
		if from == model.RunRunning {
			return from, nil
		}
		return observed, nil
	case model.RunRunning, model.RunSucceeded, model.RunFailed, model.RunStopped:
		return observed, nil
	default:
		return from, fmt.Errorf("unknown status %q", observed)
	}
}

// expire 截止时间到达时强制进入 TIMED_OUT
func expire(from model.RunStatus) (model.RunStatus, error) {
	if from.Terminal() {
		return from, fmt.Errorf("run already terminal: %s", from)
	}
	return model.RunTimedOut, nil
}

// mapEngineStatus Dify 的状态字符串映射为本地状态，未知值按运行中处理
func mapEngineStatus(s string) model.RunStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "running":
		return model.RunRunning
	case "succeeded", "partial-succeeded":
		return model.RunSucceeded
	case "failed":
		return model.RunFailed
	case "stopped":
		return model.RunStopped
	case "", "pending", "waiting":
		return model.RunPending
	default:
		logger.Warnf("未知的工作流状态 %q，按 running 处理", s)
		return model.RunRunning
	}
}
