// internal/service/order/domain/state.go
package domain

// State 是大订单的生命周期状态。
// CLOSED 和 REVERSING 是过渡态：只在 saga 执行期间可见。
type State string

const (
	StateNone      State = "NONE"      // 从未创建，或已重置
	StateOpen      State = "OPEN"      // 接受子订单
	StateClosed    State = "CLOSED"    // booking saga 进行中
	StateExecuted  State = "EXECUTED"  // 全部成交
	StateFailed    State = "FAILED"    // saga 失败并已补偿
	StateReversing State = "REVERSING" // reversal saga 进行中
	StateReversed  State = "REVERSED"  // 成交已全部撤销
	StateCanceled  State = "CANCELED"  // 在成交前取消
)
