package app

import (
	"context"
	"sync"

	"github.com/bankabank/ledger-service/pkg/gatewayclient"
	"github.com/bankabank/ledger-service/pkg/interbankclient"
)

type publishedEvent struct {
	routingKey string
	payload    interface{}
}

// stubPublisher records published events in memory.
type stubPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *stubPublisher) Publish(ctx context.Context, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{routingKey: routingKey, payload: body})
	return nil
}

func (p *stubPublisher) Close() {}

func (p *stubPublisher) eventsFor(routingKey string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.routingKey == routingKey {
			out = append(out, e)
		}
	}
	return out
}

// stubInterbank records submitted transfers and returns canned responses.
type stubInterbank struct {
	mu        sync.Mutex
	banks     []interbankclient.Bank
	details   *interbankclient.AccountDetails
	submitErr error
	submitted []interbankclient.TransferRequest
}

func (c *stubInterbank) ListBanks(ctx context.Context) ([]interbankclient.Bank, error) {
	return c.banks, nil
}

func (c *stubInterbank) ValidateAccount(ctx context.Context, bankCode, accountNumber string) (*interbankclient.AccountDetails, error) {
	return c.details, nil
}

func (c *stubInterbank) SubmitTransfer(ctx context.Context, req interbankclient.TransferRequest) (*interbankclient.TransferResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitErr != nil {
		return nil, c.submitErr
	}
	c.submitted = append(c.submitted, req)
	return &interbankclient.TransferResponse{Reference: req.Reference, Status: "pending"}, nil
}

// stubGateway records charge initializations.
type stubGateway struct {
	mu       sync.Mutex
	err      error
	requests []gatewayclient.ChargeRequest
}

func (c *stubGateway) InitializeCharge(ctx context.Context, req gatewayclient.ChargeRequest) (*gatewayclient.ChargeResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	c.requests = append(c.requests, req)
	return &gatewayclient.ChargeResponse{
		AuthorizationURL: "https://gateway.test/pay/" + req.Reference,
		AccessCode:       "access_" + req.Reference,
		Reference:        req.Reference,
	}, nil
}
