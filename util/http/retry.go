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

package http

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"github.com/awslabs/stream-inflate/config"
	"github.com/containerd/log"
	rhttp "github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

// NewRetryableClient creates a retryable HTTP client which will automatically
// retry on non-fatal errors given a RetryableHTTPClientConfig.
func NewRetryableClient(cfg config.RetryableHTTPClientConfig) *rhttp.Client {
	rhttpClient := rhttp.NewClient()
	// Don't log every request
	rhttpClient.Logger = nil

	// set retry config
	rhttpClient.RetryMax = cfg.MaxRetries
	rhttpClient.RetryWaitMin = time.Duration(cfg.MinWaitMsec) * time.Millisecond
	rhttpClient.RetryWaitMax = time.Duration(cfg.MaxWaitMsec) * time.Millisecond
	rhttpClient.Backoff = BackoffStrategy
	rhttpClient.CheckRetry = RetryStrategy
	rhttpClient.ErrorHandler = HandleHTTPError

	// set timeouts
	rhttpClient.HTTPClient.Timeout = time.Duration(cfg.RequestTimeoutMsec) * time.Millisecond
	innerTransport := rhttpClient.HTTPClient.Transport
	if t, ok := innerTransport.(*http.Transport); ok {
		t.DialContext = (&net.Dialer{
			Timeout: time.Duration(cfg.DialTimeoutMsec) * time.Millisecond,
		}).DialContext
		t.ResponseHeaderTimeout = time.Duration(cfg.ResponseHeaderTimeoutMsec) * time.Millisecond
	}

	return rhttpClient
}

// Jitter returns a number in the range duration to duration+(duration/divisor)-1, inclusive
func Jitter(duration time.Duration, divisor int64) time.Duration {
	if int64(duration)/divisor <= 0 {
		return duration
	}
	return time.Duration(rand.Int64N(int64(duration)/divisor) + int64(duration))
}

// BackoffStrategy extends retryablehttp's DefaultBackoff to add a random jitter to avoid
// overwhelming the server when it comes back online
func BackoffStrategy(minDuration, maxDuration time.Duration, attemptNum int, resp *http.Response) time.Duration {
	delayTime := rhttp.DefaultBackoff(minDuration, maxDuration, attemptNum, resp)
	return Jitter(delayTime, 8)
}

// RetryStrategy extends retryablehttp's DefaultRetryPolicy to log the error and response when retrying
// DefaultRetryPolicy retries whenever err is non-nil (except for some url errors) or if returned
// status code is 429 or 5xx (except 501)
func RetryStrategy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	retry, err2 := rhttp.DefaultRetryPolicy(ctx, resp, err)
	if retry {
		fields := logrus.Fields{"error": RedactError(err)}
		if resp != nil {
			fields["status"] = resp.StatusCode
		}
		log.G(ctx).WithFields(fields).Debugf("retrying request")
	}
	return retry, RedactError(err2)
}

// HandleHTTPError implements retryablehttp client's ErrorHandler to ensure returned errors
// have HTTP query values redacted to prevent leaking sensitive information like encoded credentials or tokens.
func HandleHTTPError(resp *http.Response, err error, attempts int) (*http.Response, error) {
	var (
		method = "unknown"
		url    = "unknown"
	)
	if resp != nil {
		Drain(resp.Body)
		if resp.Request != nil {
			method = resp.Request.Method
			if resp.Request.URL != nil {
				RedactURL(resp.Request.URL)
				url = resp.Request.URL.Redacted()
			}
		}
	}
	if err == nil {
		return nil, fmt.Errorf("%s \"%s\": giving up request after %d attempt(s)", method, url, attempts)
	}

	err = RedactError(err)
	return nil, fmt.Errorf("%s \"%s\": giving up request after %d attempt(s): %w", method, url, attempts, err)
}

// Drain reads a bounded amount of body and closes it, so the connection
// can be reused.
func Drain(body io.ReadCloser) {
	defer body.Close()
	const responseReadLimit = int64(4096)
	_, _ = io.Copy(io.Discard, io.LimitReader(body, responseReadLimit))
}
