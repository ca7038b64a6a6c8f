package main

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/aehistory/history/eventlog"
	"github.com/aehistory/history/history"
)

const nodeLookupTimeout = 2 * time.Second

// nodeChecker reports whether nodes linked from help messages exist in a
// workspace.
type nodeChecker struct {
	nodes     history.NodeResolver
	workspace string
}

func (c *nodeChecker) NodeExists(identifier string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), nodeLookupTimeout)
	defer cancel()

	_, err := c.nodes.ResolveNode(ctx, c.workspace, identifier)
	if err != nil && !errors.Is(err, eventlog.ErrNotFound) {
		log.Printf("Unable to look up node %s: %v", identifier, err)
	}
	return err == nil
}
