package relationship

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"skillforge.org/internal/activity"
	"skillforge.org/internal/directory"
	"skillforge.org/internal/fault"
	"skillforge.org/internal/ids"
	"skillforge.org/internal/obs"
	"skillforge.org/internal/subject"
)

// Engine validates and persists relationship requests and applies responses
// to them. Authority rules thread through the directory's capability
// predicates and the subject store's ownership and participation data.
type Engine struct {
	directory *directory.Directory
	subjects  subject.Store
	requests  Store
	recorder  activity.Recorder
}

func NewEngine(dir *directory.Directory, subjects subject.Store, requests Store, recorder activity.Recorder) (*Engine, error) {
	if dir == nil {
		return nil, errors.New("directory is required")
	}
	if subjects == nil {
		return nil, errors.New("subject store is required")
	}
	if requests == nil {
		return nil, errors.New("request store is required")
	}
	return &Engine{directory: dir, subjects: subjects, requests: requests, recorder: recorder}, nil
}

// CreateRequestInput carries the proposal. To may be zero for project
// facilitator and learner requests, which default to the project owner.
type CreateRequestInput struct {
	From    directory.Ref
	To      directory.Ref
	For     subject.Ref
	Type    string
	Purpose string
}

// CreateRequest validates the proposal and persists it in pending state.
func (e *Engine) CreateRequest(ctx context.Context, in CreateRequestInput) (*Request, error) {
	req, err := e.createRequest(ctx, in)
	if err != nil {
		obs.IncFailure("create_request", err)
		return nil, err
	}
	obs.IncRequestCreated()
	return req, nil
}

func (e *Engine) createRequest(ctx context.Context, in CreateRequestInput) (*Request, error) {
	if in.From.IsZero() {
		return nil, fmt.Errorf("%w: from is required", fault.ErrInvalid)
	}
	if in.For.IsZero() {
		return nil, fmt.Errorf("%w: for is required", fault.ErrInvalid)
	}
	if strings.TrimSpace(in.Type) == "" {
		return nil, fmt.Errorf("%w: type is required", fault.ErrInvalid)
	}
	tag, known := subject.Normalize(in.Type)
	if !known || !tag.ValidFor(in.For.Kind) {
		return nil, fmt.Errorf("%w: %s is not a valid role for %s subjects", fault.ErrInvalid, strings.TrimSpace(in.Type), in.For.Kind)
	}

	if err := e.resolveActor(ctx, in.From, "from"); err != nil {
		return nil, err
	}
	sub, err := e.subjects.Find(ctx, in.For)
	if errors.Is(err, fault.ErrNotFound) {
		return nil, fmt.Errorf("%w: subject %s not found", fault.ErrInvalid, in.For)
	}
	if err != nil {
		return nil, err
	}

	toSupplied := !in.To.IsZero()
	to := in.To
	if toSupplied {
		if err := e.resolveActor(ctx, to, "to"); err != nil {
			return nil, err
		}
	} else {
		// only project facilitator/learner requests have a default recipient
		if in.For.Kind != subject.KindProject || (tag != subject.TagFacilitator && tag != subject.TagLearner) {
			return nil, fmt.Errorf("%w: to is required for %s requests", fault.ErrInvalid, tag)
		}
		to = sub.Owner
	}

	officials, err := e.subjects.Officials(ctx, in.For)
	if err != nil {
		return nil, err
	}
	fromAuth, err := e.holdsAuthority(ctx, in.From, sub, officials)
	if err != nil {
		return nil, err
	}
	toAuth, err := e.holdsAuthority(ctx, to, sub, officials)
	if err != nil {
		return nil, err
	}
	// the applying side is whichever of from/to is not already empowered;
	// when both sides are empowered the proposal still concerns from
	applicant := in.From
	if fromAuth && !toAuth {
		applicant = to
	}

	steps := []func() error{
		func() error {
			if !fromAuth && !toAuth {
				return fmt.Errorf("%w: neither %s nor %s holds authority over %s", fault.ErrUnauthorized, in.From, to, in.For)
			}
			return nil
		},
		func() error {
			held, err := e.subjects.ParticipationRoles(ctx, in.For, applicant)
			if err != nil {
				return err
			}
			for _, t := range held {
				if t == tag {
					return fmt.Errorf("%w: %s is already a %s of %s", fault.ErrState, applicant, tag, in.For)
				}
			}
			return nil
		},
		func() error {
			if tag != subject.TagAdministrator {
				return nil
			}
			if containsRef(officials, in.From) && containsRef(officials, to) {
				return fmt.Errorf("%w: %s and %s are both already administrators of %s", fault.ErrState, in.From, to, in.For)
			}
			return nil
		},
		func() error {
			if tag != subject.TagAdministrator {
				return nil
			}
			if applicant.Kind != directory.KindUser {
				return fmt.Errorf("%w: %s must be an individual to become an administrator", fault.ErrInvalid, applicant)
			}
			adult, err := e.directory.IsAdult(ctx, applicant)
			if err != nil {
				return err
			}
			if !adult {
				return fmt.Errorf("%w: %s must be an adult to become an administrator", fault.ErrInvalid, applicant)
			}
			return nil
		},
		func() error {
			if !toSupplied || in.For.Kind != subject.KindProject {
				return nil
			}
			required, needed := tag.RequiredUserType()
			if !needed {
				return nil
			}
			capable, err := e.directory.HasUserTypes(ctx, to, []string{required})
			if err != nil {
				return err
			}
			if capable {
				return nil
			}
			participates, err := e.subjects.IsParticipant(ctx, in.For, to)
			if err != nil {
				return err
			}
			if participates {
				return nil
			}
			return fmt.Errorf("%w: %s lacks the %s user type", fault.ErrUnauthorized, to, required)
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}

	req := &Request{
		ID:      ids.New(),
		From:    in.From,
		To:      to,
		For:     in.For,
		Type:    tag,
		State:   StatePending,
		Purpose: strings.TrimSpace(in.Purpose),
	}
	if err := e.requests.Create(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// Respond applies a response to a pending request. On acceptance the
// participation edge, the state transition and the activity entry commit
// atomically; the activity entry is omitted when the responder is exactly
// the request's designated recipient acting on their own request.
func (e *Engine) Respond(ctx context.Context, requestID, response string, responder directory.Ref) (*Request, error) {
	req, err := e.respond(ctx, requestID, response, responder)
	if err != nil {
		obs.IncFailure("respond", err)
		return nil, err
	}
	obs.IncResponse(string(req.State))
	return req, nil
}

func (e *Engine) respond(ctx context.Context, requestID, response string, responder directory.Ref) (*Request, error) {
	if strings.TrimSpace(requestID) == "" {
		return nil, fmt.Errorf("%w: request id is required", fault.ErrInvalid)
	}
	if responder.IsZero() {
		return nil, fmt.Errorf("%w: responder is required", fault.ErrInvalid)
	}
	req, err := e.requests.FindRequest(ctx, requestID)
	if errors.Is(err, fault.ErrNotFound) {
		return nil, fmt.Errorf("%w: no request to respond to", fault.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if req.State != StatePending {
		return nil, fmt.Errorf("%w: already responded", fault.ErrState)
	}
	resp := strings.TrimSpace(strings.ToLower(response))
	if resp != ResponseAccepted && resp != ResponseRejected {
		return nil, fmt.Errorf("%w: unknown response %q", fault.ErrInvalid, response)
	}

	sub, err := e.subjects.Find(ctx, req.For)
	if err != nil {
		return nil, err
	}
	officials, err := e.subjects.Officials(ctx, req.For)
	if err != nil {
		return nil, err
	}
	allowed := responder == req.To || responder == sub.Owner || containsRef(officials, responder)
	if !allowed {
		allowed, err = e.directory.IsAdmin(ctx, responder)
		if err != nil && !errors.Is(err, fault.ErrNotFound) {
			return nil, err
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: %s may not respond to request %s", fault.ErrUnauthorized, responder, req.ID)
	}

	if resp == ResponseRejected {
		return e.requests.Resolve(ctx, req.ID, StateRejected, nil, nil)
	}

	applicant := req.From
	fromAuth, err := e.holdsAuthority(ctx, req.From, sub, officials)
	if err != nil {
		return nil, err
	}
	toAuth, err := e.holdsAuthority(ctx, req.To, sub, officials)
	if err != nil {
		return nil, err
	}
	if fromAuth && !toAuth {
		applicant = req.To
	}

	part := &subject.Participation{Subject: req.For, Actor: applicant, Tag: req.Type}
	var entry *activity.Entry
	if responder != req.To {
		entry = activity.New(responder, "request", req.ID, "respond", map[string]any{"response": resp})
	}
	updated, err := e.requests.Resolve(ctx, req.ID, StateAccepted, part, entry)
	if err != nil {
		return nil, err
	}
	if entry != nil && e.recorder != nil {
		if err := e.recorder.Record(ctx, entry); err != nil {
			obs.LogOperation(map[string]any{"level": "error", "msg": "activity record failed", "error": err.Error()})
		}
	}
	return updated, nil
}

// holdsAuthority reports whether the actor is the subject's owner, a
// platform admin, or an official of the subject's privileged family.
func (e *Engine) holdsAuthority(ctx context.Context, actor directory.Ref, sub *subject.Subject, officials []directory.Ref) (bool, error) {
	if actor == sub.Owner || containsRef(officials, actor) {
		return true, nil
	}
	return e.directory.IsAdmin(ctx, actor)
}

func (e *Engine) resolveActor(ctx context.Context, ref directory.Ref, field string) error {
	err := e.directory.Resolve(ctx, ref)
	if errors.Is(err, fault.ErrNotFound) {
		return fmt.Errorf("%w: %s actor %s not found", fault.ErrInvalid, field, ref)
	}
	return err
}

func containsRef(refs []directory.Ref, ref directory.Ref) bool {
	for _, r := range refs {
		if r == ref {
			return true
		}
	}
	return false
}
