package chains

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/valyala/fasthttp"

	"github.com/sigweihq/chainsync/pkg/constants"
)

// DefaultChainListURL serves the ethereum-lists chain metadata
const DefaultChainListURL = "https://chainid.network/chains.json"

// ChainListEntry is one chain from chains.json (or chainlist.org/rpcs.json)
type ChainListEntry struct {
	ChainID   int64             `json:"chainId"`
	Name      string            `json:"name"`
	ShortName string            `json:"shortName"`
	RPC       []json.RawMessage `json:"rpc"`
}

// RPCURLs returns the usable HTTPS endpoints of the entry
// chains.json lists plain strings, chainlist.org lists {"url": ...} objects.
func (e ChainListEntry) RPCURLs() []string {
	var urls []string
	for _, raw := range e.RPC {
		var url string
		if err := json.Unmarshal(raw, &url); err != nil {
			var obj struct {
				URL string `json:"url"`
			}
			if err := json.Unmarshal(raw, &obj); err != nil {
				continue
			}
			url = obj.URL
		}
		// Only include HTTPS URLs and exclude templated URLs
		if strings.HasPrefix(url, "https://") && !strings.Contains(url, "${") {
			urls = append(urls, url)
		}
	}
	return urls
}

// ChainListSource fetches chain names and endpoints from a chainlist feed and
// keeps them in a TTL cache in front of a Registry
type ChainListSource struct {
	client   *fasthttp.Client
	url      string
	ttl      time.Duration
	cache    *cache.Cache
	registry *Registry
	logger   *slog.Logger
}

// NewChainListSource creates a chainlist-backed metadata source
// Fetched chains are also merged into registry, which serves as the fallback once entries expire.
func NewChainListSource(url string, ttl time.Duration, registry *Registry, logger *slog.Logger) *ChainListSource {
	if url == "" {
		url = DefaultChainListURL
	}
	if ttl <= 0 {
		ttl = constants.ChainListTTL
	}
	if registry == nil {
		registry = NewDefaultRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChainListSource{
		client:   &fasthttp.Client{},
		url:      url,
		ttl:      ttl,
		cache:    cache.New(ttl, ttl/2),
		registry: registry,
		logger:   logger,
	}
}

// Refresh downloads the feed and updates the cache and the registry
func (s *ChainListSource) Refresh(ctx context.Context) error {
	entries, err := s.fetch(ctx)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.ChainID <= 0 || entry.Name == "" {
			continue
		}
		s.cache.Set(cacheKey(entry.ChainID), entry.Name, s.ttl)

		if err := s.registry.Register(&ChainInfo{
			ChainID:   entry.ChainID,
			Name:      entry.Name,
			Endpoints: entry.RPCURLs(),
		}); err != nil {
			s.logger.Debug("skipping chainlist entry", "chainID", entry.ChainID, "error", err)
		}
	}

	s.logger.Info("chain metadata refreshed", "url", s.url, "chains", len(entries))
	return nil
}

// ChainName looks a chain name up in the cache first, then in the registry
func (s *ChainListSource) ChainName(chainID int64) (string, bool) {
	if v, found := s.cache.Get(cacheKey(chainID)); found {
		if name, ok := v.(string); ok && name != "" {
			return name, true
		}
	}
	return s.registry.ChainName(chainID)
}

// Registry returns the registry the source writes into
func (s *ChainListSource) Registry() *Registry {
	return s.registry
}

func (s *ChainListSource) fetch(ctx context.Context) ([]ChainListEntry, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.url)
	req.Header.SetMethod(fasthttp.MethodGet)

	timeout := constants.ChainListTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < timeout {
			timeout = remaining
		}
	}

	if err := s.client.DoTimeout(req, resp, timeout); err != nil {
		return nil, fmt.Errorf("failed to fetch chainlist data: %w", err)
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("chainlist returned status %d", resp.StatusCode())
	}

	body := resp.Body()
	if len(body) > constants.MaxResponseBodySize {
		return nil, fmt.Errorf("chainlist response too large: %d bytes", len(body))
	}

	var entries []ChainListEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode chainlist data: %w", err)
	}

	return entries, nil
}

func cacheKey(chainID int64) string {
	return "chain_" + strconv.FormatInt(chainID, 10)
}
