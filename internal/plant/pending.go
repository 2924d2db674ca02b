package plant

import (
	"slices"
	"sync"

	"github.com/rickgao/plantclient/internal/codec"
)

type pendingResult struct {
	frames []codec.Frame
	err    error
}

// pendingRequest is one outstanding correlated request.
type pendingRequest struct {
	id      string
	collect bool
	expect  Expect
	frames  []codec.Frame
	result  chan pendingResult
}

func newPendingRequest(id string, expect Expect, collect bool) *pendingRequest {
	if len(expect.DoneTemplates) == 0 {
		expect.DoneTemplates = expect.Templates
	}
	if expect.Done == nil {
		expect.Done = codec.IsTerminator
	}
	return &pendingRequest{
		id:      id,
		collect: collect,
		expect:  expect,
		result:  make(chan pendingResult, 1),
	}
}

// correlates reports whether f may belong to this request. Frames echoing a
// user_msg must echo ours; frames without one correlate by template.
func (r *pendingRequest) correlates(f codec.Frame) bool {
	if !f.Has(codec.FieldUserMsg) {
		return true
	}
	return slices.Contains(f.Strings(codec.FieldUserMsg), r.id)
}

func (r *pendingRequest) isData(f codec.Frame) bool {
	if !slices.Contains(r.expect.Templates, f.TemplateID) {
		return false
	}
	return r.expect.Match == nil || r.expect.Match(f)
}

func (r *pendingRequest) isDone(f codec.Frame) bool {
	return slices.Contains(r.expect.DoneTemplates, f.TemplateID) && r.expect.Done(f)
}

// offer hands f to the request. It returns consumed=true when the frame
// belongs to it and finished=true when the request is complete.
func (r *pendingRequest) offer(f codec.Frame) (consumed, finished bool) {
	if !r.correlates(f) {
		return false, false
	}
	if !r.collect {
		if !r.isData(f) {
			return false, false
		}
		r.finish(pendingResult{frames: []codec.Frame{f}, err: ResponseError(f)})
		return true, true
	}
	if r.isDone(f) {
		r.finish(pendingResult{frames: r.frames, err: ResponseError(f)})
		return true, true
	}
	if r.isData(f) {
		r.frames = append(r.frames, f)
		return true, false
	}
	return false, false
}

func (r *pendingRequest) finish(res pendingResult) {
	select {
	case r.result <- res:
	default:
	}
}

// pendingTable routes response frames to outstanding requests, oldest first.
type pendingTable struct {
	mu    sync.Mutex
	order []*pendingRequest
}

func (t *pendingTable) add(r *pendingRequest) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.order = append(t.order, r)
}

func (t *pendingTable) remove(r *pendingRequest) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.order = slices.DeleteFunc(t.order, func(p *pendingRequest) bool { return p == r })
}

// dispatch offers f to each request in registration order and reports
// whether one consumed it.
func (t *pendingTable) dispatch(f codec.Frame) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, r := range t.order {
		consumed, finished := r.offer(f)
		if !consumed {
			continue
		}
		if finished {
			t.order = slices.Delete(t.order, i, i+1)
		}
		return true
	}
	return false
}

// failAll completes every outstanding request with err.
func (t *pendingTable) failAll(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, r := range t.order {
		r.finish(pendingResult{err: err})
	}
	t.order = nil
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}

// reject fails the request a Reject frame names by user_msg.
func (t *pendingTable) reject(f codec.Frame) bool {
	ids := f.Strings(codec.FieldUserMsg)
	if len(ids) == 0 {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for i, r := range t.order {
		if !slices.Contains(ids, r.id) {
			continue
		}
		code, text := codec.ResponseCode(f)
		r.finish(pendingResult{err: &VenueError{Template: f.TemplateID, Code: code, Text: text}})
		t.order = slices.Delete(t.order, i, i+1)
		return true
	}
	return false
}
