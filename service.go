// Package subindex implements the subscription index: the mapping from
// topic filters to subscribing clients (and back) that a broker
// consults on every publish and maintains on every client connect,
// subscribe, unsubscribe and disconnect. It keeps two lanes —
// an in-memory ephemeral lane for clean-session clients and a
// remote-store-backed persistent lane for durable sessions — plus a
// local-only system-topic lane isolated from both, and optionally
// gossips subscribe/unsubscribe events to other broker nodes sharing
// the same remote store.
package subindex

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/atomic"

	"github.com/nimbus-mqtt/subindex/cluster"
	"github.com/nimbus-mqtt/subindex/ephemeral"
	"github.com/nimbus-mqtt/subindex/internal/async"
	"github.com/nimbus-mqtt/subindex/persistent"
	"github.com/nimbus-mqtt/subindex/record"
	"github.com/nimbus-mqtt/subindex/systopic"
	"github.com/nimbus-mqtt/subindex/topics"
)

// Service is the SubscriptionService described by the spec: the single
// entry point a broker uses to record, clear and search subscriptions
// across the ephemeral, persistent and system-topic lanes, optionally
// propagating mutations to other cluster nodes.
type Service struct {
	brokerID string

	eph  *ephemeral.Index
	pers *persistent.Index // nil when no persistent lane is configured
	sys  *systopic.Index

	agent *cluster.Agent // nil when clustering is disabled
	pool  *async.Pool

	closed    atomic.Bool
	closeOnce sync.Once
	cancel    context.CancelFunc
}

// Options configures a new Service. Store, Cache and Bus are each
// optional: a nil Store disables the persistent lane entirely, and
// Subscribe or Unsubscribe with cleanSession=false then return a plain
// error, since there is nowhere to put the record.
type Options struct {
	BrokerID string

	Store persistent.Store // nil disables the persistent lane
	Cache persistent.Cache // nil disables the inner cache
	Keys  persistent.KeyScheme

	Bus   cluster.Bus // nil disables cluster gossip
	Codec cluster.Codec
	Channel string

	PoolSize int
}

// New constructs a Service from opts. If opts.Bus is non-nil, the
// returned Service starts a background goroutine listening for inbound
// cluster events; cancel it with Close.
func New(opts Options) (*Service, error) {
	if opts.BrokerID == "" {
		return nil, fmt.Errorf("subindex: BrokerID must not be empty")
	}

	pool, err := async.New(opts.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("subindex: new pool: %w", err)
	}

	svc := &Service{
		brokerID: opts.BrokerID,
		eph:      ephemeral.New(),
		sys:      systopic.New(),
		pool:     pool,
	}

	if opts.Store != nil {
		svc.pers = persistent.New(opts.Store, opts.Cache, opts.Keys)
	}

	if opts.Bus != nil {
		codec := opts.Codec
		if codec == nil {
			codec = cluster.JSONCodec{}
		}
		var agentOpts []cluster.Option
		if opts.Channel != "" {
			agentOpts = append(agentOpts, cluster.WithChannel(opts.Channel))
		}
		svc.agent = cluster.NewAgent(opts.Bus, codec, opts.BrokerID, svc.eph, svc.pers, agentOpts...)

		ctx, cancel := context.WithCancel(context.Background())
		svc.cancel = cancel
		go func() { _ = svc.agent.Listen(ctx) }()
	}

	return svc, nil
}

// Ready reports whether the Service is safe to serve publish-path
// lookups from: always true unless an inner cache is configured, in
// which case it is true only once WarmCache has completed.
func (s *Service) Ready() bool {
	if s.pers == nil {
		return true
	}
	return s.pers.Warm()
}

// WarmCache rebuilds the persistent lane's inner cache from the remote
// store. Callers typically run this once at startup, before accepting
// client traffic, and block on it via Ready.
func (s *Service) WarmCache(ctx context.Context) error {
	if s.pers == nil {
		return nil
	}
	return s.pers.WarmCache(ctx)
}

// Subscribe records clientId's subscription to filter at qos. Routing
// between the ephemeral and persistent lanes is by cleanSession: true
// goes to the in-memory lane, false goes to the remote store (and its
// mirror, if configured). $SYS filters are rejected here — use
// SubscribeSys.
func (s *Service) Subscribe(ctx context.Context, clientID, filter string, qos byte, cleanSession bool) (*async.Future, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if clientID == "" || filter == "" {
		return nil, ErrNilSubscriber
	}
	if !ValidQoS(qos) {
		return nil, ErrInvalidQoS
	}
	if err := topics.ValidFilter(filter); err != nil {
		return nil, &ProtocolError{Err: err}
	}
	if topics.IsSysTopic(filter) {
		return nil, fmt.Errorf("subindex: %s is a system topic, use SubscribeSys", filter)
	}

	r := record.Subscription{ClientID: clientID, Filter: filter, QoS: qos, CleanSession: cleanSession}

	if cleanSession {
		s.eph.Add(r)
		return s.pool.Submit(clientID, func() error {
			s.emit(ctx, cluster.ClientSubOrUnsubMsg{
				Type: cluster.Sub, ClientID: clientID, Topic: filter, QoS: qos, CleanSession: true,
			})
			return nil
		}), nil
	}

	if s.pers == nil {
		return nil, fmt.Errorf("subindex: no persistent store configured for durable-session subscribe")
	}

	return s.pool.Submit(clientID, func() error {
		if err := s.pers.Add(ctx, r); err != nil {
			return wrapStoreError("Subscribe", err)
		}
		s.emit(ctx, cluster.ClientSubOrUnsubMsg{
			Type: cluster.Sub, ClientID: clientID, Topic: filter, QoS: qos, CleanSession: false,
		})
		return nil
	}), nil
}

// Unsubscribe removes clientId's subscription(s) to filters. cleanSession
// selects the lane exactly as Subscribe does, and all of filters must
// belong to the same lane.
func (s *Service) Unsubscribe(ctx context.Context, clientID string, filters []string, cleanSession bool) (*async.Future, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if clientID == "" || len(filters) == 0 {
		return nil, ErrNilSubscriber
	}

	if cleanSession {
		s.eph.Remove(clientID, filters)
		return s.pool.Submit(clientID, func() error {
			s.emit(ctx, cluster.ClientSubOrUnsubMsg{
				Type: cluster.Unsub, ClientID: clientID, Topics: filters, CleanSession: true,
			})
			return nil
		}), nil
	}

	if s.pers == nil {
		return nil, fmt.Errorf("subindex: no persistent store configured for durable-session unsubscribe")
	}

	return s.pool.Submit(clientID, func() error {
		if err := s.pers.Remove(ctx, clientID, filters); err != nil {
			return wrapStoreError("Unsubscribe", err)
		}
		s.emit(ctx, cluster.ClientSubOrUnsubMsg{
			Type: cluster.Unsub, ClientID: clientID, Topics: filters, CleanSession: false,
		})
		return nil
	}), nil
}

// SearchSubscribeClientList returns every subscription — ephemeral and
// persistent — matching topic. $SYS topics never surface here; use
// SearchSysTopicClients.
func (s *Service) SearchSubscribeClientList(ctx context.Context, topic string) ([]record.Subscription, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if topics.IsSysTopic(topic) {
		return nil, nil
	}

	out := s.eph.MatchTopics(topic)
	if s.pers == nil {
		return out, nil
	}

	persistentMatches, err := s.pers.MatchTopics(ctx, topic)
	if err != nil {
		return nil, wrapStoreError("SearchSubscribeClientList", err)
	}
	return append(out, persistentMatches...), nil
}

// ClearClientSubscriptions removes every subscription clientId holds in
// both the ephemeral and persistent lanes, and returns the topics that
// were cleared from each.
func (s *Service) ClearClientSubscriptions(ctx context.Context, clientID string) (ephemeralTopics, persistentTopics []string, err error) {
	if s.closed.Load() {
		return nil, nil, ErrClosed
	}

	ephemeralTopics = s.eph.ClearClient(clientID)
	if len(ephemeralTopics) > 0 {
		s.pool.Submit(clientID, func() error {
			s.emit(ctx, cluster.ClientSubOrUnsubMsg{Type: cluster.Unsub, ClientID: clientID, Topics: ephemeralTopics, CleanSession: true})
			return nil
		})
	}

	if s.pers != nil {
		persistentTopics, err = s.pers.ClearClient(ctx, clientID)
		if err != nil {
			return ephemeralTopics, nil, wrapStoreError("ClearClientSubscriptions", err)
		}
		if len(persistentTopics) > 0 {
			s.pool.Submit(clientID, func() error {
				s.emit(ctx, cluster.ClientSubOrUnsubMsg{Type: cluster.Unsub, ClientID: clientID, Topics: persistentTopics, CleanSession: false})
				return nil
			})
		}
	}

	return ephemeralTopics, persistentTopics, nil
}

// ClearUnAuthorizedClientSub unsubscribes clientId from those topics in
// noLongerAuthorized that it currently holds. A topic the client holds in
// the ephemeral lane is unsubscribed there; otherwise, if the inner cache
// lists it for the client, it is unsubscribed in the persistent lane.
// Topics the client does not hold are ignored without error. The
// persistent side is read from the inner cache only, so with no cache
// configured no persistent subscription is found.
func (s *Service) ClearUnAuthorizedClientSub(ctx context.Context, clientID string, noLongerAuthorized []string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if len(noLongerAuthorized) == 0 {
		return nil
	}

	ephHeld := make(map[string]struct{})
	for _, t := range s.eph.ClientTopics(clientID) {
		ephHeld[t] = struct{}{}
	}
	persHeld := make(map[string]struct{})
	if s.pers != nil {
		for _, t := range s.pers.CachedClientTopics(clientID) {
			persHeld[t] = struct{}{}
		}
	}

	var ephDrop, persDrop []string
	for _, t := range noLongerAuthorized {
		switch {
		case isMember(ephHeld, t):
			ephDrop = append(ephDrop, t)
		case isMember(persHeld, t):
			persDrop = append(persDrop, t)
		}
	}

	if len(ephDrop) > 0 {
		if _, err := s.Unsubscribe(ctx, clientID, ephDrop, true); err != nil {
			return err
		}
	}
	if len(persDrop) > 0 {
		if _, err := s.Unsubscribe(ctx, clientID, persDrop, false); err != nil {
			return err
		}
	}
	return nil
}

func isMember(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}

// partialFailer is satisfied by persistent's internal storeOpError,
// whose Failed() method names which of a multi-op call's sub-operations
// failed. Asserting against this interface, rather than the unexported
// concrete type, is how wrapStoreError tells a partial failure (some
// sub-operations of Add/Remove succeeded) from a wholesale one.
type partialFailer interface {
	Failed() []string
}

// wrapStoreError turns a persistent-lane error into the StoreError
// flavour §7 promises callers: NewPartialStoreError when err names which
// sub-operations failed, a plain StoreError otherwise. nil passes through.
func wrapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if pf, ok := err.(partialFailer); ok {
		if failed := pf.Failed(); len(failed) > 0 {
			return NewPartialStoreError(op, failed, err)
		}
	}
	return &StoreError{Op: op, Err: err}
}

// SubscribeSys registers clientId's subscription to a $SYS filter.
// System-topic subscriptions are local-only: never persisted, never
// gossiped.
func (s *Service) SubscribeSys(clientID, filter string, qos byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if clientID == "" || filter == "" {
		return ErrNilSubscriber
	}
	if !topics.IsSysTopic(filter) {
		return fmt.Errorf("subindex: %s is not a system topic", filter)
	}
	if err := topics.ValidFilter(filter); err != nil {
		return &ProtocolError{Err: err}
	}
	s.sys.Add(record.Subscription{ClientID: clientID, Filter: filter, QoS: qos})
	return nil
}

// UnsubscribeSys removes clientId's subscription to a $SYS filter.
func (s *Service) UnsubscribeSys(clientID, filter string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.sys.Remove(clientID, filter)
	return nil
}

// SearchSysTopicClients returns every system-topic subscription matching
// topic, which must itself be a $SYS topic.
func (s *Service) SearchSysTopicClients(topic string) []record.Subscription {
	if s.closed.Load() || !topics.IsSysTopic(topic) {
		return nil
	}
	return s.sys.MatchTopics(topic)
}

// ClearClientSysSub removes every system-topic subscription clientId
// holds.
func (s *Service) ClearClientSysSub(clientID string) {
	if s.closed.Load() {
		return
	}
	s.sys.ClearClient(clientID)
}

// Stats returns a lightweight snapshot for diagnostics: the topics
// clientId is currently subscribed to in the ephemeral lane, and (if a
// cache is configured) the persistent lane's cached view.
func (s *Service) Stats(clientID string) (ephemeralTopics, cachedPersistentTopics []string) {
	ephemeralTopics = s.eph.ClientTopics(clientID)
	if s.pers != nil {
		cachedPersistentTopics = s.pers.CachedClientTopics(clientID)
	}
	return
}

// Close stops the cluster listener goroutine, if any, and releases the
// worker pool. It is safe to call Close more than once.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.cancel != nil {
			s.cancel()
		}
		s.pool.Release()
	})
	return nil
}

func (s *Service) emit(ctx context.Context, msg cluster.ClientSubOrUnsubMsg) {
	if s.agent == nil {
		return
	}
	s.agent.Emit(ctx, msg)
}
