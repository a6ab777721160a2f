package provider

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vietddude/verdict/internal/core/domain"
)

// GRPCCompleteMethod is the full method name served by inference gateways.
// Requests and replies are google.protobuf.Struct messages, so no generated
// stubs are needed on either side.
const GRPCCompleteMethod = "/verdict.inference.v1.Inference/Complete"

// GRPCClient calls a gRPC inference gateway.
type GRPCClient struct {
	identity domain.BackendIdentity
	conn     *grpc.ClientConn
	apiKey   string
}

// NewGRPCClient connects lazily to endpoint. An https:// scheme or port 443
// selects TLS; anything else is plaintext.
func NewGRPCClient(model, endpoint, apiKey string) (*GRPCClient, error) {
	target := endpoint
	var opts []grpc.DialOption

	if strings.HasPrefix(endpoint, "https://") || strings.HasSuffix(endpoint, ":443") {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		target = strings.TrimPrefix(target, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		target = strings.TrimPrefix(target, "http://")
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", target, err)
	}
	return NewGRPCClientConn(model, conn, apiKey), nil
}

// NewGRPCClientConn wraps an existing connection.
func NewGRPCClientConn(model string, conn *grpc.ClientConn, apiKey string) *GRPCClient {
	return &GRPCClient{
		identity: domain.BackendIdentity{Provider: "grpc", Model: model},
		conn:     conn,
		apiKey:   apiKey,
	}
}

func (c *GRPCClient) Identity() domain.BackendIdentity {
	return c.identity
}

// Complete invokes the gateway's Complete method.
func (c *GRPCClient) Complete(ctx context.Context, p Prompt) (string, error) {
	files := make([]any, 0, len(p.Files))
	for _, f := range p.Files {
		files = append(files, f.URI)
	}

	req, err := structpb.NewStruct(map[string]any{
		"model":  c.identity.Model,
		"system": p.System,
		"prompt": p.Text,
		"json":   p.JSON,
		"files":  files,
	})
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	if c.apiKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.apiKey)
	}

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, GRPCCompleteMethod, req, resp); err != nil {
		return "", err
	}

	text := resp.GetFields()["text"].GetStringValue()
	if text == "" {
		return "", fmt.Errorf("%w: empty text field", ErrInvalidReply)
	}
	return text, nil
}

// Close releases the connection.
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}
