// Package kvstore fetches remote configuration fragments from a Consul KV
// store when a run is launched with a remote-store descriptor instead of
// an inline config object.
package kvstore

import (
	"encoding/json"
	"fmt"

	consulapi "github.com/hashicorp/consul/api"
)

// Client wraps the official Consul API client down to the single
// operation the config resolver needs: fetching the three sibling
// fragments under a service-config prefix.
type Client struct{}

// NewClient returns a kvstore client. Connection details are per-call
// (host, port) rather than baked into the client, since a single harness
// process may resolve against different Consul endpoints across runs.
func NewClient() *Client {
	return &Client{}
}

// KeyNotFoundError is returned by getJSON when a key has no value in the
// store. target-config is a required fragment (the config resolver fails
// the whole launch when it's missing); harness/logging are optional, so
// FetchUnion swallows this error for those two slots.
type KeyNotFoundError struct {
	Key string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("consul key %s not found", e.Key)
}

// FetchUnion retrieves the harness, target-config, and logging fragments
// from "<serviceConfigPrefix>/harness", "<serviceConfigPrefix>/target-config",
// and "<serviceConfigPrefix>/logging" respectively. A missing harness or
// logging key yields a nil fragment for that slot (the resolver applies
// defaults); a missing target-config key is a required fragment and fails
// the fetch with *KeyNotFoundError.
func (c *Client) FetchUnion(host string, port int, serviceConfigPrefix string) (harness, targetConfig, logging json.RawMessage, err error) {
	cfg := consulapi.DefaultConfig()
	if host != "" {
		if port != 0 {
			cfg.Address = fmt.Sprintf("%s:%d", host, port)
		} else {
			cfg.Address = host
		}
	}

	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("constructing consul client: %w", err)
	}

	harness, err = c.getJSON(client, serviceConfigPrefix+"/harness")
	if err != nil {
		if _, ok := err.(*KeyNotFoundError); !ok {
			return nil, nil, nil, err
		}
		harness = nil
	}
	targetConfig, err = c.getJSON(client, serviceConfigPrefix+"/target-config")
	if err != nil {
		return nil, nil, nil, err
	}
	logging, err = c.getJSON(client, serviceConfigPrefix+"/logging")
	if err != nil {
		if _, ok := err.(*KeyNotFoundError); !ok {
			return nil, nil, nil, err
		}
		logging = nil
	}
	return harness, targetConfig, logging, nil
}

// getJSON fetches a single key and validates that its value parses as
// JSON; a non-JSON value fails closed rather than being passed through.
// A missing key returns *KeyNotFoundError so callers can decide whether
// that slot is required.
func (c *Client) getJSON(client *consulapi.Client, key string) (json.RawMessage, error) {
	pair, _, err := client.KV().Get(key, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching consul key %s: %w", key, err)
	}
	if pair == nil {
		return nil, &KeyNotFoundError{Key: key}
	}
	if !json.Valid(pair.Value) {
		return nil, fmt.Errorf("consul key %s does not hold valid JSON", key)
	}
	return json.RawMessage(pair.Value), nil
}
