/*
   Copyright The Soci Snapshotter Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package source

import (
	"context"
	"fmt"
	"net/http"

	httputil "github.com/awslabs/stream-inflate/util/http"
	"github.com/containerd/errdefs"
	"github.com/containerd/log"
	rhttp "github.com/hashicorp/go-retryablehttp"
)

// NewHTTPSource issues a GET for url and streams the response body. The
// request is retried according to client; ctx bounds the whole transfer.
func NewHTTPSource(ctx context.Context, client *rhttp.Client, url string, chunkSize int) (Source, error) {
	req, err := rhttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", httputil.RedactError(err))
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", httputil.RedactError(err))
	}
	if resp.StatusCode != http.StatusOK {
		httputil.Drain(resp.Body)
		httputil.RedactURL(req.URL)
		return nil, fmt.Errorf("unexpected status %q fetching %s: %w", resp.Status, req.URL.Redacted(), statusError(resp.StatusCode))
	}
	log.G(ctx).WithField("content_length", resp.ContentLength).Debug("fetching compressed stream")
	return newReaderSource(resp.Body, resp.Body, chunkSize), nil
}

func statusError(code int) error {
	switch code {
	case http.StatusNotFound, http.StatusGone:
		return errdefs.ErrNotFound
	case http.StatusUnauthorized:
		return errdefs.ErrUnauthenticated
	case http.StatusForbidden:
		return errdefs.ErrPermissionDenied
	case http.StatusTooManyRequests:
		return errdefs.ErrResourceExhausted
	default:
		return errdefs.ErrUnavailable
	}
}
