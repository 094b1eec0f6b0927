package protocol

import (
	"fmt"
	"sort"
	"sync"
)

// KindPayload is a parsed, typed message body.
type KindPayload interface {
	// PayloadKind returns the kind byte this payload was parsed under.
	PayloadKind() uint8
}

// BodyCodec interprets the body bytes of one kind. Codecs exist purely for
// typed display and query; anchor resolution never needs them because
// anchors live in the fixed envelope.
type BodyCodec interface {
	Parse(body []byte) (KindPayload, error)
	Render(p KindPayload) ([]byte, error)
}

// Registry maps kind bytes to body codecs. External collaborators may
// register additional kinds at startup; unregistered kinds are stored as
// opaque bytes, never dropped.
type Registry struct {
	mu     sync.RWMutex
	codecs map[uint8]BodyCodec
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[uint8]BodyCodec)}
}

// Register binds a codec to a kind byte. Re-registering a kind is an error;
// kinds are a shared namespace and silent replacement would change how
// already-indexed bodies present.
func (r *Registry) Register(kind uint8, c BodyCodec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.codecs[kind]; exists {
		return fmt.Errorf("kind %d already registered", kind)
	}
	r.codecs[kind] = c
	return nil
}

// Lookup returns the codec for a kind, if one is registered.
func (r *Registry) Lookup(kind uint8) (BodyCodec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[kind]
	return c, ok
}

// Kinds returns the registered kind bytes in ascending order.
func (r *Registry) Kinds() []uint8 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]uint8, 0, len(r.codecs))
	for k := range r.codecs {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Built-in kind bytes.
const (
	KindGeneric uint8 = 0
	KindText    uint8 = 1
	KindState   uint8 = 2
	KindVote    uint8 = 3
	KindImage   uint8 = 4
	KindGeo     uint8 = 5
	KindDNS     uint8 = 10
	KindProof   uint8 = 11
	KindToken   uint8 = 20
)

// KindName returns a human-readable name for a kind byte.
func KindName(kind uint8) string {
	switch kind {
	case KindGeneric:
		return "generic"
	case KindText:
		return "text"
	case KindState:
		return "state"
	case KindVote:
		return "vote"
	case KindImage:
		return "image"
	case KindGeo:
		return "geo-marker"
	case KindDNS:
		return "dns"
	case KindProof:
		return "proof"
	case KindToken:
		return "token"
	default:
		return fmt.Sprintf("unknown(%d)", kind)
	}
}

// DefaultRegistry returns a registry with all built-in kinds registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(KindGeneric, genericCodec{})
	r.Register(KindText, textCodec{})
	r.Register(KindState, stateCodec{})
	r.Register(KindVote, voteCodec{})
	r.Register(KindImage, imageCodec{})
	r.Register(KindGeo, geoCodec{})
	r.Register(KindDNS, dnsCodec{})
	r.Register(KindProof, proofCodec{})
	r.Register(KindToken, tokenCodec{})
	return r
}
