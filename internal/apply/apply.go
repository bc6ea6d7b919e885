// Package apply binds gated actions to vehicles and executes them against
// the store. Every action either applies, queues for human review, or fails
// with a note; a batch outcome is always best-effort and never an error.
package apply

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/stocklens/yardbot/internal/pipeline"
	"github.com/stocklens/yardbot/internal/resolver"
	"github.com/stocklens/yardbot/internal/store"
)

// VehicleStore is the mutation surface the applier needs. *store.Store
// satisfies it.
type VehicleStore interface {
	GetVehicleByRego(ctx context.Context, rego string) (*store.Vehicle, error)
	ListVehiclesByMakeModel(ctx context.Context, makeName, model string) ([]store.Vehicle, error)
	CreateVehicle(ctx context.Context, v store.Vehicle) (*store.Vehicle, error)
	UpdateLocation(ctx context.Context, id uuid.UUID, location string) error
	SetNextLocation(ctx context.Context, id uuid.UUID, next string) error
	MarkSold(ctx context.Context, id uuid.UUID, soldTo, salePrice string) error
	SetReady(ctx context.Context, id uuid.UUID, ready bool) error
	RecordDropOff(ctx context.Context, id uuid.UUID, destination, note string) error
	AddChecklistItem(ctx context.Context, id uuid.UUID, item string) error
	CreateAppointment(ctx context.Context, vehicleID uuid.UUID, kind, withName, scheduledFor, note string) (uuid.UUID, error)
	CreateTask(ctx context.Context, vehicleID uuid.UUID, description string) (uuid.UUID, error)
}

// directory adapts VehicleStore to the resolver's read interface.
type directory struct {
	vs VehicleStore
}

func (d directory) FindByRego(ctx context.Context, rego string) (*resolver.Candidate, error) {
	v, err := d.vs.GetVehicleByRego(ctx, rego)
	if err != nil || v == nil {
		return nil, err
	}
	return &resolver.Candidate{ID: v.ID, Rego: v.Rego, Make: v.Make, Model: v.Model}, nil
}

func (d directory) FindByMakeModel(ctx context.Context, makeName, model string) ([]resolver.Candidate, error) {
	vs, err := d.vs.ListVehiclesByMakeModel(ctx, makeName, model)
	if err != nil {
		return nil, err
	}
	out := make([]resolver.Candidate, 0, len(vs))
	for _, v := range vs {
		out = append(out, resolver.Candidate{ID: v.ID, Rego: v.Rego, Make: v.Make, Model: v.Model})
	}
	return out, nil
}

// Note records the fate of one action that did not apply cleanly.
type Note struct {
	Action pipeline.Action
	Reason string
}

// Outcome is the per-batch result: what applied, what needs a human, and
// what failed, with reasons.
type Outcome struct {
	Applied     []pipeline.Action
	NeedsReview []Note
	Failed      []Note
}

// Summary renders a short human-readable account for posting back to the
// conversation.
func (o Outcome) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "applied %d action(s)", len(o.Applied))
	if len(o.NeedsReview) > 0 {
		fmt.Fprintf(&sb, ", %d need(s) review", len(o.NeedsReview))
	}
	if len(o.Failed) > 0 {
		fmt.Fprintf(&sb, ", %d failed", len(o.Failed))
	}
	for _, n := range o.NeedsReview {
		fmt.Fprintf(&sb, "\nreview: %s %s — %s", n.Action.Type, n.Action.Rego, n.Reason)
	}
	for _, n := range o.Failed {
		fmt.Fprintf(&sb, "\nfailed: %s %s — %s", n.Action.Type, n.Action.Rego, n.Reason)
	}
	return sb.String()
}

// Applier executes actions.
type Applier struct {
	vs       VehicleStore
	resolver *resolver.Resolver
	logger   *slog.Logger
}

// New builds an applier over the store and an already configured resolver.
func New(vs VehicleStore, res *resolver.Resolver, logger *slog.Logger) *Applier {
	return &Applier{vs: vs, resolver: res, logger: logger}
}

// NewWithDefaults builds an applier with a default resolver over the store.
func NewWithDefaults(vs VehicleStore, logger *slog.Logger) *Applier {
	return New(vs, resolver.New(directory{vs: vs}, nil, resolver.Config{}), logger)
}

// Directory exposes the store as a resolver directory, for callers wiring
// their own resolver configuration.
func Directory(vs VehicleStore) resolver.Directory {
	return directory{vs: vs}
}

// Apply runs every action. Individual failures never stop the batch.
func (a *Applier) Apply(ctx context.Context, actions []pipeline.Action) Outcome {
	var out Outcome
	for _, action := range actions {
		a.applyOne(ctx, action, &out)
	}
	return out
}

func (a *Applier) applyOne(ctx context.Context, action pipeline.Action, out *Outcome) {
	// Unbound tasks are legal: "order more key tags" names no vehicle.
	if action.Type == pipeline.TypeTask && action.Rego == "" && (action.Make == "" || action.Model == "") {
		if _, err := a.vs.CreateTask(ctx, uuid.Nil, action.Task); err != nil {
			out.Failed = append(out.Failed, Note{Action: action, Reason: fmt.Sprintf("create task: %v", err)})
			return
		}
		out.Applied = append(out.Applied, action)
		return
	}

	res, err := a.resolver.Resolve(ctx, action.Rego, action.Make, action.Model, action.Confidence)
	if err != nil {
		out.Failed = append(out.Failed, Note{Action: action, Reason: err.Error()})
		return
	}

	var vehicleID uuid.UUID
	switch res.Decision {
	case resolver.DecisionExact:
		vehicleID = res.Best.Candidate.ID
	case resolver.DecisionAutoFix:
		vehicleID = res.Best.Candidate.ID
		a.logger.Info("auto-fixed rego",
			"from", action.Rego,
			"to", res.Best.Candidate.Rego,
			"score", res.Best.Score,
		)
	case resolver.DecisionCreate:
		v, err := a.vs.CreateVehicle(ctx, store.Vehicle{
			Rego:        action.Rego,
			Make:        action.Make,
			Model:       action.Model,
			Badge:       action.Badge,
			Year:        action.Year,
			Description: action.Description,
		})
		if err != nil {
			out.Failed = append(out.Failed, Note{Action: action, Reason: fmt.Sprintf("create vehicle: %v", err)})
			return
		}
		vehicleID = v.ID
	case resolver.DecisionReview:
		reason := "no confident match"
		if res.Best != nil {
			reason = fmt.Sprintf("closest is %s (score %.2f), needs confirmation", res.Best.Candidate.Rego, res.Best.Score)
		}
		out.NeedsReview = append(out.NeedsReview, Note{Action: action, Reason: reason})
		return
	case resolver.DecisionReject:
		out.Failed = append(out.Failed, Note{Action: action, Reason: "could not identify a vehicle"})
		return
	}

	if err := a.execute(ctx, vehicleID, action); err != nil {
		out.Failed = append(out.Failed, Note{Action: action, Reason: err.Error()})
		return
	}
	out.Applied = append(out.Applied, action)
}

// execute performs the store mutation for one bound action. The switch
// covers every member of the action enum; a new type landing in the default
// case is a bug surfaced as a per-action failure.
func (a *Applier) execute(ctx context.Context, id uuid.UUID, action pipeline.Action) error {
	switch action.Type {
	case pipeline.TypeLocationUpdate:
		return a.vs.UpdateLocation(ctx, id, action.Location)
	case pipeline.TypeSold:
		return a.vs.MarkSold(ctx, id, action.SoldTo, action.SalePrice)
	case pipeline.TypeRepair:
		return a.vs.AddChecklistItem(ctx, id, action.ChecklistItem)
	case pipeline.TypeReady:
		return a.vs.SetReady(ctx, id, action.ReadyStatus != "not_ready")
	case pipeline.TypeDropOff:
		return a.vs.RecordDropOff(ctx, id, action.Destination, action.Note)
	case pipeline.TypeCustomerAppt:
		_, err := a.vs.CreateAppointment(ctx, id, "customer", action.CustomerName, action.AppointmentTime, action.Note)
		return err
	case pipeline.TypeReconAppt:
		_, err := a.vs.CreateAppointment(ctx, id, "recon", action.Reconditioner, action.AppointmentTime, action.Note)
		return err
	case pipeline.TypeNextLocation:
		return a.vs.SetNextLocation(ctx, id, action.NextLocation)
	case pipeline.TypeTask:
		_, err := a.vs.CreateTask(ctx, id, action.Task)
		return err
	default:
		return fmt.Errorf("unhandled action type %q", action.Type)
	}
}
