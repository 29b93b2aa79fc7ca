// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// This file implements a quota aware decorator around an http.RoundTripper.
// The detection service is a single shared backend, so the client paces its
// own requests instead of relying on the service to push back. Requests are
// never retried here.
package cloud

import (
	"net/http"

	"golang.org/x/time/rate"
)

// NewRateLimiter builds a token bucket allowing requestsPerSecond with a burst
// of one. A non positive rate returns nil, meaning unlimited.
func NewRateLimiter(requestsPerSecond float64) *rate.Limiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
}

// QuotaAwareTransport waits for the limiter before handing each request to
// the wrapped transport.
type QuotaAwareTransport struct {
	Base    http.RoundTripper
	Limiter *rate.Limiter
}

// NewQuotaAwareTransport wraps base. When limiter is nil base is returned
// unchanged.
func NewQuotaAwareTransport(base http.RoundTripper, limiter *rate.Limiter) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if limiter == nil {
		return base
	}
	return &QuotaAwareTransport{Base: base, Limiter: limiter}
}

// RoundTrip blocks until the limiter admits the request or its context ends.
func (q *QuotaAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := q.Limiter.Wait(req.Context()); err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, err
	}
	return q.Base.RoundTrip(req)
}
