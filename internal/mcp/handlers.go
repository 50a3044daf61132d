package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type metricInput struct {
	workflowArgs
}

type windowedInput struct {
	workflowArgs
	windowArgs
}

type bottleneckInput struct {
	workflowArgs
	Multiplier float64 `json:"multiplier,omitempty"`
}

type invalidateInput struct {
	ConfigurationID string `json:"configuration_id"`
}

func (s *Server) handleComputeLeadTime(ctx context.Context, req *mcp.CallToolRequest, input metricInput) (*mcp.CallToolResult, any, error) {
	cfg, err := toWorkflow(input.workflowArgs)
	if err != nil {
		return nil, nil, err
	}

	result, err := s.engine.ComputeLeadTime(ctx, input.JQL, cfg)
	if err != nil {
		return nil, nil, err
	}
	out, err := textResult(result)
	return out, nil, err
}

func (s *Server) handleComputeCycleTime(ctx context.Context, req *mcp.CallToolRequest, input metricInput) (*mcp.CallToolResult, any, error) {
	cfg, err := toWorkflow(input.workflowArgs)
	if err != nil {
		return nil, nil, err
	}

	result, err := s.engine.ComputeCycleTime(ctx, input.JQL, cfg)
	if err != nil {
		return nil, nil, err
	}
	out, err := textResult(result)
	return out, nil, err
}

func (s *Server) handleComputeThroughput(ctx context.Context, req *mcp.CallToolRequest, input windowedInput) (*mcp.CallToolResult, any, error) {
	cfg, err := toWorkflow(input.workflowArgs)
	if err != nil {
		return nil, nil, err
	}
	window, err := toWindow(input.windowArgs, time.Now())
	if err != nil {
		return nil, nil, err
	}

	result, err := s.engine.ComputeThroughput(ctx, input.JQL, cfg, window)
	if err != nil {
		return nil, nil, err
	}
	out, err := textResult(result)
	return out, nil, err
}

func (s *Server) handleComputeWIP(ctx context.Context, req *mcp.CallToolRequest, input metricInput) (*mcp.CallToolResult, any, error) {
	cfg, err := toWorkflow(input.workflowArgs)
	if err != nil {
		return nil, nil, err
	}

	result, err := s.engine.ComputeWIP(ctx, input.JQL, cfg)
	if err != nil {
		return nil, nil, err
	}
	out, err := textResult(result)
	return out, nil, err
}

func (s *Server) handleComputeCFD(ctx context.Context, req *mcp.CallToolRequest, input windowedInput) (*mcp.CallToolResult, any, error) {
	cfg, err := toWorkflow(input.workflowArgs)
	if err != nil {
		return nil, nil, err
	}
	window, err := toWindow(input.windowArgs, time.Now())
	if err != nil {
		return nil, nil, err
	}

	result, err := s.engine.ComputeCFD(ctx, input.JQL, cfg, window)
	if err != nil {
		return nil, nil, err
	}
	out, err := textResult(result)
	return out, nil, err
}

func (s *Server) handleDetectBottlenecks(ctx context.Context, req *mcp.CallToolRequest, input bottleneckInput) (*mcp.CallToolResult, any, error) {
	cfg, err := toWorkflow(input.workflowArgs)
	if err != nil {
		return nil, nil, err
	}
	if input.Multiplier < 0 {
		return nil, nil, fmt.Errorf("multiplier must be positive, got %v", input.Multiplier)
	}

	result, err := s.engine.ComputeBottlenecks(ctx, input.JQL, cfg, input.Multiplier)
	if err != nil {
		return nil, nil, err
	}
	out, err := textResult(result)
	return out, nil, err
}

func (s *Server) handleAnalyzeWIPStability(ctx context.Context, req *mcp.CallToolRequest, input windowedInput) (*mcp.CallToolResult, any, error) {
	cfg, err := toWorkflow(input.workflowArgs)
	if err != nil {
		return nil, nil, err
	}
	window, err := toWindow(input.windowArgs, time.Now())
	if err != nil {
		return nil, nil, err
	}

	result, err := s.engine.ComputeWIPStability(ctx, input.JQL, cfg, window)
	if err != nil {
		return nil, nil, err
	}
	out, err := textResult(result)
	return out, nil, err
}

func (s *Server) handleInvalidateConfiguration(ctx context.Context, req *mcp.CallToolRequest, input invalidateInput) (*mcp.CallToolResult, any, error) {
	if input.ConfigurationID == "" {
		return nil, nil, fmt.Errorf("configuration_id is required")
	}

	removed := s.engine.InvalidateForConfiguration(input.ConfigurationID)
	out, err := textResult(map[string]any{
		"configuration_id": input.ConfigurationID,
		"removed_entries":  removed,
	})
	return out, nil, err
}
