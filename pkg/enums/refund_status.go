package enums

// RefundStatus is the refund sub-state of an order item. Items without a
// refund request carry no value at all.
type RefundStatus string

const (
	RefundStatusPendingApproval RefundStatus = "PENDING_APPROVAL"
	RefundStatusApproved        RefundStatus = "APPROVED"
	RefundStatusRejected        RefundStatus = "REJECTED"
	RefundStatusCompleted       RefundStatus = "COMPLETED"
)

var refundStatuses = values[RefundStatus]{
	RefundStatusPendingApproval, RefundStatusApproved, RefundStatusRejected, RefundStatusCompleted,
}

func (r RefundStatus) String() string { return string(r) }
func (r RefundStatus) IsValid() bool  { return refundStatuses.has(r) }

// IsSettled reports whether the request has reached a final decision.
func (r RefundStatus) IsSettled() bool {
	return r == RefundStatusRejected || r == RefundStatusCompleted
}

func ParseRefundStatus(raw string) (RefundStatus, error) {
	return refundStatuses.parse("refund status", raw)
}
