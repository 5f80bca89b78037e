// Copyright 2026 Swarm Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package openrouter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// modelCacheTTL is how long a fetched model catalogue stays fresh.
const modelCacheTTL = 5 * time.Minute

// modelCatalogue caches the upstream model list. Concurrent cache misses are
// coalesced into a single upstream fetch.
type modelCatalogue struct {
	mu        sync.RWMutex
	models    []ModelInfo
	fetchedAt time.Time
	group     singleflight.Group
}

// Models returns the available upstream models, cached for modelCacheTTL.
func (c *Client) Models(ctx context.Context) ([]ModelInfo, error) {
	c.catalogue.mu.RLock()
	if c.catalogue.models != nil && time.Since(c.catalogue.fetchedAt) < modelCacheTTL {
		models := c.catalogue.models
		c.catalogue.mu.RUnlock()
		return models, nil
	}
	c.catalogue.mu.RUnlock()

	v, err, _ := c.catalogue.group.Do("models", func() (interface{}, error) {
		models, err := c.fetchModels(ctx)
		if err != nil {
			return nil, err
		}
		c.catalogue.mu.Lock()
		c.catalogue.models = models
		c.catalogue.fetchedAt = time.Now()
		c.catalogue.mu.Unlock()
		return models, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]ModelInfo), nil
}

// ModelAvailable checks whether a model id exists in the upstream catalogue.
func (c *Client) ModelAvailable(ctx context.Context, modelID string) (bool, error) {
	models, err := c.Models(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range models {
		if m.ID == modelID {
			return true, nil
		}
	}
	return false, nil
}

// modelsEndpoint derives the model catalogue URL from the completions endpoint.
func (c *Client) modelsEndpoint() string {
	if i := strings.LastIndex(c.endpoint, "/chat/completions"); i >= 0 {
		return c.endpoint[:i] + "/models"
	}
	return strings.TrimRight(c.endpoint, "/") + "/models"
}

func (c *Client) fetchModels(ctx context.Context) ([]ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.modelsEndpoint(), nil)
	if err != nil {
		return nil, &UpstreamError{Code: CodeNetwork, Message: "failed to create request", Err: err}
	}
	c.setHeaders(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Code: CodeNetwork, Message: "HTTP request failed", Err: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &UpstreamError{Code: CodeNetwork, Message: "failed to read response", Err: err}
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{
			Code:       CodeHTTPStatus,
			StatusCode: httpResp.StatusCode,
			Message:    string(respBody),
		}
	}

	var resp ModelListResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &UpstreamError{Code: CodeDecode, Message: "failed to parse models response", Err: err}
	}
	if resp.Data == nil {
		return nil, &UpstreamError{Code: CodeDecode, Message: "invalid models response format"}
	}

	return resp.Data, nil
}
