/*
store.go - Domain persistence interfaces

PURPOSE:
  Widens the engine's ledger store with the request, timeline, policy,
  employee, and holiday tables. One concrete store (store/sqlite, or the
  in-memory store) implements the whole surface; the WithTx view does
  too, so workflow code can assert the engine.Store it receives back up
  to this interface and write request + timeline + ledger atomically.
*/
package leave

import (
	"context"

	"github.com/warp/leave-engine/engine"
)

// =============================================================================
// STORE - Full domain persistence surface
// =============================================================================

type Store interface {
	engine.Store

	// Requests
	SaveRequest(ctx context.Context, r *LeaveRequest) error
	GetRequest(ctx context.Context, id string) (*LeaveRequest, error)
	// ListOpenRequests returns the employee's non-terminal requests.
	ListOpenRequests(ctx context.Context, employeeID string) ([]*LeaveRequest, error)
	ListRequestsByStatus(ctx context.Context, status RequestStatus) ([]*LeaveRequest, error)

	// Timeline (append-only)
	AppendTimeline(ctx context.Context, e TimelineEntry) error
	TimelineFor(ctx context.Context, requestID string) ([]TimelineEntry, error)

	// Policies
	SavePolicy(ctx context.Context, p *LeavePolicy) error
	GetPolicy(ctx context.Context, id string) (*LeavePolicy, error)
	ListActivePolicies(ctx context.Context) ([]*LeavePolicy, error)

	// Employees
	SaveEmployee(ctx context.Context, e *Employee) error
	GetEmployee(ctx context.Context, id string) (*Employee, error)
	ListActiveEmployees(ctx context.Context) ([]*Employee, error)

	// Holidays
	SaveHoliday(ctx context.Context, h Holiday) error
	ListHolidays(ctx context.Context, year int) ([]Holiday, error)
}

// TxStore adds transactional execution over the full surface. The
// engine.Store passed to fn is the transaction view; it also implements
// leave.Store (assert with AsLeaveStore).
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(engine.Store) error) error
}

// AsLeaveStore widens a transaction view back to the domain surface.
func AsLeaveStore(s engine.Store) (Store, bool) {
	ls, ok := s.(Store)
	return ls, ok
}
