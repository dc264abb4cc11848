package protocol

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const topicPrefix = "pearcron::channel::"

// ChannelTopic is the rendezvous key for a channel name: the hex SHA-256 of
// the prefixed name. Peers on the same channel derive the same topic.
func ChannelTopic(channel string) string {
	sum := sha256.Sum256([]byte(topicPrefix + channel))
	return hex.EncodeToString(sum[:])
}

// ShouldDial reports whether self is responsible for dialling peer. Only the
// lexicographically smaller address dials, so each pair gets one connection.
func ShouldDial(self, peer string) bool {
	return self != "" && peer != "" && self < peer
}

// Discovery registers this peer with a rendezvous server under the channel
// topic and feeds the peers it learns about to the dialer.
type Discovery struct {
	baseURL  string
	topic    string
	selfAddr string
	client   *http.Client
	dialer   *DialScheduler
	interval time.Duration
	log      zerolog.Logger
}

func NewDiscovery(baseURL, topic, selfAddr string, dialer *DialScheduler, interval time.Duration, log zerolog.Logger) *Discovery {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Discovery{
		baseURL:  strings.TrimRight(baseURL, "/"),
		topic:    topic,
		selfAddr: selfAddr,
		client:   &http.Client{Timeout: 5 * time.Second},
		dialer:   dialer,
		interval: interval,
		log:      log.With().Str("component", "discovery").Logger(),
	}
}

func (d *Discovery) peersURL() string {
	return fmt.Sprintf("%s/topics/%s/peers", d.baseURL, url.PathEscape(d.topic))
}

// Register announces selfAddr under the topic. Repeating it refreshes the
// server-side TTL.
func (d *Discovery) Register(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{"addr": d.selfAddr})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.peersURL(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return d.do(req, nil)
}

// Fetch lists the addresses registered under the topic.
func (d *Discovery) Fetch(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.peersURL(), nil)
	if err != nil {
		return nil, err
	}
	var peers []string
	if err := d.do(req, &peers); err != nil {
		return nil, err
	}
	return peers, nil
}

// Leave removes selfAddr from the topic.
func (d *Discovery) Leave(ctx context.Context) error {
	q := url.Values{"addr": {d.selfAddr}}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, d.peersURL()+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	return d.do(req, nil)
}

func (d *Discovery) do(req *http.Request, out any) error {
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("rendezvous %s %s: %s", req.Method, req.URL.Path, resp.Status)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Sync registers, fetches and hands dialable peers to the dialer.
func (d *Discovery) Sync(ctx context.Context) {
	if err := d.Register(ctx); err != nil {
		d.log.Warn().Err(err).Msg("register with rendezvous")
	}
	peers, err := d.Fetch(ctx)
	if err != nil {
		d.log.Warn().Err(err).Msg("fetch peers")
		return
	}
	for _, peer := range peers {
		if ShouldDial(d.selfAddr, peer) {
			d.dialer.Add(peer)
		}
	}
}

// Run syncs immediately and then on every interval until ctx is done.
func (d *Discovery) Run(ctx context.Context) {
	d.Sync(ctx)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Sync(ctx)
		}
	}
}
