package controllers

import (
	"context"
	"mindmesh/mindmesh/services/digest"
)

type DigestController struct {
	svc *digest.Service
}

func NewDigestController(svc *digest.Service) *DigestController {
	return &DigestController{svc: svc}
}

func (c *DigestController) Weekly(ctx context.Context, ownerID, name string) (*digest.Digest, error) {
	return c.svc.Generate(ctx, ownerID, name)
}
