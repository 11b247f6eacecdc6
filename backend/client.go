package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	_ "golang.org/x/image/webp"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/sirupsen/logrus"

	"github.com/olablt/gio-worldmap/tiles"
)

const maxResourceBytes = 64 << 20

// StatusError is returned when the service answers with a failure.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("render service: status %d", e.Code)
	}
	return fmt.Sprintf("render service: %s (status %d)", e.Message, e.Code)
}

type Options struct {
	HTTPClient *http.Client
	// CacheBytes bounds the resource cache. Zero disables caching.
	CacheBytes int64
	UserAgent  string
	Logger     logrus.FieldLogger
}

// Client implements tiles.Backend.
type Client struct {
	base   *url.URL
	client *http.Client
	cache  *ristretto.Cache[string, []byte]
	agent  string
	log    logrus.FieldLogger
}

var _ tiles.Backend = (*Client)(nil)

func New(baseURL string, opts Options) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend url %q: scheme and host required", baseURL)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "gio-worldmap"
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	c := &Client{
		base:   base,
		client: opts.HTTPClient,
		agent:  opts.UserAgent,
		log:    opts.Logger,
	}
	if opts.CacheBytes > 0 {
		c.cache, err = ristretto.NewCache(&ristretto.Config[string, []byte]{
			NumCounters: 10000,
			MaxCost:     opts.CacheBytes,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("resource cache: %w", err)
		}
	}
	return c, nil
}

// Close releases the resource cache.
func (c *Client) Close() {
	if c.cache != nil {
		c.cache.Close()
	}
}

func (c *Client) Manifest(ctx context.Context, pack, save, world string) (*tiles.Manifest, error) {
	q := url.Values{"pack": {pack}, "save": {save}}
	if world != "" {
		q.Set("world", world)
	}
	var res Response
	if err := c.call(ctx, http.MethodGet, ManifestPath+"?"+q.Encode(), nil, &res); err != nil {
		return nil, err
	}
	if res.Manifest == nil {
		return nil, &StatusError{Code: http.StatusOK, Message: "response has no manifest"}
	}
	return res.Manifest, nil
}

func (c *Client) RenderRegion(ctx context.Context, req tiles.RenderRequest) (string, error) {
	body := RenderBody{
		Pack:  req.Pack,
		Save:  req.Save,
		RX:    req.Region.X,
		RZ:    req.Region.Z,
		World: req.World,
		Force: req.Force,
	}
	var res Response
	if err := c.call(ctx, http.MethodPost, RenderPath, body, &res); err != nil {
		return "", err
	}
	if res.TileURL == "" {
		return "", &StatusError{Code: http.StatusOK, Message: "response has no tile url"}
	}
	if req.Force {
		c.forget(res.TileURL)
		c.forget(tiles.MetadataLocation(res.TileURL))
	}
	return res.TileURL, nil
}

func (c *Client) GenerateFullMap(ctx context.Context, pack, save, world string, force bool) error {
	var res Response
	err := c.call(ctx, http.MethodPost, GeneratePath, GenerateBody{Pack: pack, Save: save, World: world, Force: force}, &res)
	if err != nil {
		return err
	}
	if c.cache != nil {
		c.cache.Clear()
	}
	c.log.WithFields(logrus.Fields{
		"pack": pack, "save": save, "world": res.World,
		"rendered": res.Rendered, "failed": res.Failed,
	}).Info("backend: map generated")
	return nil
}

func (c *Client) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	u, err := c.resolve(location)
	if err != nil {
		return nil, err
	}
	key := u.String()
	if c.cache != nil {
		if data, ok := c.cache.Get(key); ok {
			return io.NopCloser(bytes.NewReader(data)), nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, key, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.agent)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(readSnippet(resp.Body))}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResourceBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", location, err)
	}
	if c.cache != nil {
		c.cache.Set(key, data, int64(len(data)))
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (c *Client) forget(location string) {
	if c.cache == nil {
		return
	}
	if u, err := c.resolve(location); err == nil {
		c.cache.Del(u.String())
	}
}

func (c *Client) resolve(location string) (*url.URL, error) {
	ref, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse location %q: %w", location, err)
	}
	return c.base.ResolveReference(ref), nil
}

// call performs an API request and decodes the envelope into res. A
// transport failure, a non-2xx status or a non-success envelope is an error.
func (c *Client) call(ctx context.Context, method, path string, body any, res *Response) error {
	u, err := c.resolve(path)
	if err != nil {
		return err
	}
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.agent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, u.Path, err)
	}
	defer resp.Body.Close()

	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxResourceBytes)).Decode(res)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Message: res.Message}
	}
	if decodeErr != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, u.Path, decodeErr)
	}
	if res.Status != StatusSuccess {
		return &StatusError{Code: resp.StatusCode, Message: res.Message}
	}
	return nil
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return string(b)
}
