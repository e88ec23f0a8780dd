package natsclient

import "time"

// Option adjusts client connection behavior.
type Option func(*Client)

// WithClientName sets the connection name reported to the server.
func WithClientName(name string) Option {
	return func(c *Client) { c.clientName = name }
}

// WithMaxReconnects limits reconnect attempts. Negative means unlimited.
func WithMaxReconnects(n int) Option {
	return func(c *Client) { c.maxReconnects = n }
}

// WithReconnectWait sets the delay between reconnect attempts.
func WithReconnectWait(d time.Duration) Option {
	return func(c *Client) { c.reconnectWait = d }
}

// WithTimeout sets the initial connect timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithUserInfo sets username/password authentication.
func WithUserInfo(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithToken sets token authentication.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}
