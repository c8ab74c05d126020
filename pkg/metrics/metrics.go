package metrics

import (
	"sync/atomic"
)

type Metrics struct {
	messagesSent      int64
	messagesReceived  int64
	sendFailures      int64
	reconnectAttempts int64
	pollTicks         int64
	activeConnections int64
	droppedFrames     int64
}

var global = &Metrics{}

func IncrementMessagesSent() {
	atomic.AddInt64(&global.messagesSent, 1)
}

func IncrementMessagesReceived() {
	atomic.AddInt64(&global.messagesReceived, 1)
}

func IncrementSendFailures() {
	atomic.AddInt64(&global.sendFailures, 1)
}

func IncrementReconnectAttempts() {
	atomic.AddInt64(&global.reconnectAttempts, 1)
}

func IncrementPollTicks() {
	atomic.AddInt64(&global.pollTicks, 1)
}

func IncrementDroppedFrames() {
	atomic.AddInt64(&global.droppedFrames, 1)
}

func SetActiveConnections(count int64) {
	atomic.StoreInt64(&global.activeConnections, count)
}

func GetMessagesSent() int64 {
	return atomic.LoadInt64(&global.messagesSent)
}

func GetMessagesReceived() int64 {
	return atomic.LoadInt64(&global.messagesReceived)
}

func GetSendFailures() int64 {
	return atomic.LoadInt64(&global.sendFailures)
}

func GetReconnectAttempts() int64 {
	return atomic.LoadInt64(&global.reconnectAttempts)
}

func GetPollTicks() int64 {
	return atomic.LoadInt64(&global.pollTicks)
}

func GetDroppedFrames() int64 {
	return atomic.LoadInt64(&global.droppedFrames)
}

func GetActiveConnections() int64 {
	return atomic.LoadInt64(&global.activeConnections)
}

func Reset() {
	atomic.StoreInt64(&global.messagesSent, 0)
	atomic.StoreInt64(&global.messagesReceived, 0)
	atomic.StoreInt64(&global.sendFailures, 0)
	atomic.StoreInt64(&global.reconnectAttempts, 0)
	atomic.StoreInt64(&global.pollTicks, 0)
	atomic.StoreInt64(&global.droppedFrames, 0)
	atomic.StoreInt64(&global.activeConnections, 0)
}
