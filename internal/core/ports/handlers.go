package ports

import "campusconnect/internal/core/domain"

// EventHandler receives typed inbound events. Handlers run on the
// connection's read goroutine in delivery order and must not block.
type EventHandler func(ev domain.Event)

// SubscriptionID identifies one On registration so it can be removed with Off.
type SubscriptionID uint64

// CallObserver is notified about call lifecycle moments the user must see.
type CallObserver func(notice domain.CallNotice)
