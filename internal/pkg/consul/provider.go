package consul

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/vidsearch/internal/pkg/videoindexer"
	vapi "github.com/airenas/vidsearch/internal/pkg/videoindexer/api"
	"github.com/hashicorp/consul/api"
	"go.uber.org/multierr"
)

const (
	pathKey      = "path"
	locationKey  = "location"
	accountKey   = "accountID"
	isHTTPSSLKey = "HTTPSSL"
	priorityKey  = "priority"
)

// Provider keeps video indexer gateways registered in consul
type Provider struct {
	consul  *api.Client
	srvName string
	tokens  videoindexer.TokenProvider

	lock *sync.RWMutex
	gws  []*gwWrap
}

type gwWrap struct {
	real     vapi.Gateway
	srv      string
	key      string
	priority float64
}

// NewProvider creates consul based gateway provider
func NewProvider(cfg *api.Config, srvNameInConsul string, tokens videoindexer.TokenProvider) (*Provider, error) {
	c, err := api.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if srvNameInConsul == "" {
		return nil, fmt.Errorf("no srv name")
	}
	if tokens == nil {
		return nil, fmt.Errorf("no token provider")
	}
	res := newProvider(c, srvNameInConsul)
	res.tokens = tokens
	return res, nil
}

func newProvider(c *api.Client, srvNameInConsul string) *Provider {
	goapp.Log.Info().Str("service", srvNameInConsul).Msg("cfg: srv name in consul")
	return &Provider{consul: c, srvName: srvNameInConsul, lock: &sync.RWMutex{}, gws: make([]*gwWrap, 0)}
}

// Get returns the gateway by key.
// If allowNew is set and the gateway is gone, selects any active one by priority
func (c *Provider) Get(srv string, allowNew bool) (vapi.Gateway, string, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	if !allowNew {
		for _, t := range c.gws {
			if t.srv == srv {
				return t.real, t.srv, nil
			}
		}
		return nil, "", fmt.Errorf("no active srv `%s`", srv)
	}
	if len(c.gws) == 0 {
		return nil, "", nil
	}
	for _, t := range c.gws {
		if t.srv == srv {
			return t.real, t.srv, nil
		}
	}
	if len(c.gws) == 1 {
		t := c.gws[0]
		return t.real, t.srv, nil
	}
	i, err := getRandomByPriority(c.gws)
	if err != nil {
		return nil, "", fmt.Errorf("can't select gateway: %w", err)
	}
	if i < len(c.gws) {
		t := c.gws[i]
		return t.real, t.srv, nil
	}
	return nil, "", nil
}

func getRandomByPriority(gws []*gwWrap) (int, error) {
	prMax := 0.0
	for _, tr := range gws {
		prMax += tr.priority
	}
	if prMax < 0.1 {
		return 0, fmt.Errorf("wrong priority sum found %f", prMax)
	}
	rnd := rand.Float64() * prMax
	prMax = 0.0
	for i, tr := range gws {
		prMax += tr.priority
		if prMax > rnd {
			return i, nil
		}
	}
	return len(gws), nil
}

// StartRegistryLoop refreshes gateways from consul until ctx is done
func (c *Provider) StartRegistryLoop(ctx context.Context, checkInterval time.Duration) (<-chan struct{}, error) {
	goapp.Log.Info().Msgf("Starting consul service check every %v", checkInterval)
	res := make(chan struct{}, 2)
	go func() {
		defer close(res)
		c.serviceLoop(ctx, checkInterval)
	}()
	return res, nil
}

func (c *Provider) serviceLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	if err := c.check(ctx); err != nil {
		goapp.Log.Error().Err(err).Send()
	}
	for {
		select {
		case <-ticker.C:
			if err := c.check(ctx); err != nil {
				goapp.Log.Error().Err(err).Send()
			}
		case <-ctx.Done():
			ticker.Stop()
			goapp.Log.Info().Msgf("Stopped consul timer service")
			return
		}
	}
}

func (c *Provider) check(ctx context.Context) error {
	ctxInt, cf := context.WithTimeout(ctx, time.Second*5)
	defer cf()
	srvs, _, err := c.consul.Health().Service(c.srvName, "", true, (&api.QueryOptions{}).WithContext(ctxInt))
	if err != nil {
		return fmt.Errorf("can't invoke consul: %w", err)
	}
	return c.updateSrv(srvs)
}

func (c *Provider) updateSrv(srvs []*api.ServiceEntry) error {
	goapp.Log.Info().Msgf("got %d services from consul", len(srvs))
	c.lock.Lock()
	defer c.lock.Unlock()
	ms := map[string]*api.ServiceEntry{}
	for _, s := range srvs {
		ms[key(s)] = s
	}
	kept := []*gwWrap{}
	for _, s := range c.gws {
		if v, ok := ms[s.srv]; ok && s.key == fullKey(v) {
			kept = append(kept, s)
			delete(ms, s.srv)
			continue
		}
		goapp.Log.Warn().Str("service", s.srv).Msgf("dropped gateway")
	}
	if len(kept) == len(c.gws) && len(ms) == 0 {
		return nil
	}
	c.gws = kept
	var err error
	for k, v := range ms {
		gw, errInt := c.newGateway(k, v)
		if errInt != nil {
			err = multierr.Append(err, errInt)
			continue
		}
		c.gws = append(c.gws, gw)
		goapp.Log.Info().Str("service", k).Float64("priority", gw.priority).Msg("added gateway")
	}
	return err
}

func (c *Provider) newGateway(k string, s *api.ServiceEntry) (*gwWrap, error) {
	cl, err := videoindexer.NewClient(getURL(s), s.Service.Meta[locationKey], s.Service.Meta[accountKey], c.tokens)
	if err != nil {
		return nil, fmt.Errorf("can't init gateway for %s: %w", k, err)
	}
	priority, err := getPriority(s)
	if err != nil {
		return nil, fmt.Errorf("can't init gateway for %s: %w", k, err)
	}
	return &gwWrap{real: cl, srv: k, key: fullKey(s), priority: priority}, nil
}

func getPriority(s *api.ServiceEntry) (float64, error) {
	v, ok := s.Service.Meta[priorityKey]
	if !ok {
		return 1, nil
	}
	res, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("can't parse priority '%s': %w", v, err)
	}
	if res < 0.5 || res > 50 {
		return 0, fmt.Errorf("wrong priority value '%f', not in [0.5, 50]", res)
	}
	return res, nil
}

func getURL(s *api.ServiceEntry) string {
	ssl := ""
	if isSSL, ok := s.Service.Meta[isHTTPSSLKey]; ok {
		if boolValue, err := strconv.ParseBool(isSSL); err == nil && boolValue {
			ssl = "s"
		}
	}
	return fmt.Sprintf("http%s://%s:%d/%s", ssl, s.Service.Address, s.Service.Port,
		strings.TrimPrefix(s.Service.Meta[pathKey], "/"))
}

func key(s *api.ServiceEntry) string {
	return fmt.Sprintf("%s:%d", s.Service.Address, s.Service.Port)
}

func fullKey(s *api.ServiceEntry) string {
	res := strings.Builder{}
	for _, key := range [...]string{pathKey, locationKey, accountKey, isHTTPSSLKey, priorityKey} {
		v, ok := s.Service.Meta[key]
		if ok {
			res.WriteString(key + ":" + v + ",")
		}
	}
	return res.String()
}

// Static always returns the same gateway
type Static struct {
	gw  vapi.Gateway
	key string
}

// NewStatic creates a single gateway provider
func NewStatic(gw vapi.Gateway, key string) (*Static, error) {
	if gw == nil {
		return nil, fmt.Errorf("no gateway")
	}
	return &Static{gw: gw, key: key}, nil
}

// Get returns the gateway
func (s *Static) Get(srv string, allowNew bool) (vapi.Gateway, string, error) {
	return s.gw, s.key, nil
}
