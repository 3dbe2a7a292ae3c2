package bridge

import "sync/atomic"

type NotifyFunc func(topic string, payload string)

// Event topics pushed to the host app.
const (
	TopicEngineReloaded     = "engine.reloaded"
	TopicEngineReloadFailed = "engine.reload_failed"
	TopicAnalysisStarted    = "analysis.started"
	TopicAnalysisFinished   = "analysis.finished"
	TopicAnalysisError      = "analysis.error"
	TopicSelectionFinished  = "selection.finished"
)

var impl atomic.Pointer[NotifyFunc]

// SetNotifyImpl 由宿主入口调用，注入事件回调（CGO 或测试）
func SetNotifyImpl(f NotifyFunc) {
	if f == nil {
		impl.Store(nil)
		return
	}
	impl.Store(&f)
}

// Notify 供 service 层调用，发送事件给 App
func Notify(topic string, payload string) {
	if f := impl.Load(); f != nil {
		(*f)(topic, payload)
	}
}
