// Package linebot wraps the LINE Messaging API client used to receive
// webhook events and send replies.
package linebot

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// Opts holds configuration options for the LINE client.
type Opts struct {
	ChannelSecret string // webhook signature verification
	ChannelToken  string // Messaging API access token
	ImageDir      string // directory for downloaded report images
	ImageBaseURL  string // public base URL serving ImageDir; empty disables URLs
}

// Option defines a configuration option for the LINE client.
type Option func(*Opts)

// WithChannelSecret sets the channel secret used for signature checks.
func WithChannelSecret(secret string) Option {
	return func(o *Opts) {
		o.ChannelSecret = secret
	}
}

// WithChannelToken sets the Messaging API channel access token.
func WithChannelToken(token string) Option {
	return func(o *Opts) {
		o.ChannelToken = token
	}
}

// WithImageDir sets the directory where report images are stored.
func WithImageDir(dir string) Option {
	return func(o *Opts) {
		o.ImageDir = dir
	}
}

// WithImageBaseURL sets the public base URL for stored images.
func WithImageBaseURL(u string) Option {
	return func(o *Opts) {
		o.ImageBaseURL = u
	}
}

// Client wraps the Messaging API and its blob endpoint.
type Client struct {
	api  *messaging_api.MessagingApiAPI
	blob *messaging_api.MessagingApiBlobAPI

	channelSecret string
	imageDir      string
	imageBaseURL  string
}

// NewClient creates a LINE client. The channel secret and token fall
// back to LINE_CHANNEL_SECRET and LINE_CHANNEL_ACCESS_TOKEN.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ChannelSecret == "" {
		cfg.ChannelSecret = os.Getenv("LINE_CHANNEL_SECRET")
	}
	if cfg.ChannelToken == "" {
		cfg.ChannelToken = os.Getenv("LINE_CHANNEL_ACCESS_TOKEN")
	}
	if cfg.ChannelSecret == "" || cfg.ChannelToken == "" {
		return nil, errors.New("LINE channel secret and access token are required")
	}

	api, err := messaging_api.NewMessagingApiAPI(cfg.ChannelToken)
	if err != nil {
		return nil, err
	}
	blob, err := messaging_api.NewMessagingApiBlobAPI(cfg.ChannelToken)
	if err != nil {
		return nil, err
	}

	return &Client{
		api:           api,
		blob:          blob,
		channelSecret: cfg.ChannelSecret,
		imageDir:      cfg.ImageDir,
		imageBaseURL:  cfg.ImageBaseURL,
	}, nil
}

// ParseWebhook verifies the request signature and parses the callback
// payload.
func (c *Client) ParseWebhook(r *http.Request) (*webhook.CallbackRequest, error) {
	return webhook.ParseRequest(c.channelSecret, r)
}

// Reply sends the reply messages for one webhook event.
func (c *Client) Reply(ctx context.Context, replyToken string, msgs []messaging_api.MessageInterface) error {
	_, err := c.api.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   msgs,
	})
	return err
}

// Push sends messages outside a reply context.
func (c *Client) Push(ctx context.Context, to string, msgs []messaging_api.MessageInterface) error {
	_, err := c.api.PushMessage(&messaging_api.PushMessageRequest{
		To:       to,
		Messages: msgs,
	}, "")
	return err
}
