/*
 * quickgo.go, part of protfun.
 *
 * Copyright 2024 The protfun authors.
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

package ontology

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rmera/protfun"
	"go.uber.org/zap"
)

// DefaultBaseURL is the QuickGO annotation service.
const DefaultBaseURL = "https://www.ebi.ac.uk/QuickGO/GAnnotation"

// ClientOptions contains the options for a QuickGO client.
type ClientOptions struct {
	BaseURL        string
	Timeout        time.Duration //for each request
	MaxRetries     uint64        //retries after the first attempt
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	HTTPClient     *http.Client //nil means http.DefaultClient
	Logger         *zap.Logger
}

// DefaultClientOptions returns the default options: 30 s per request and up to 3
// retries, starting 500 ms apart.
func DefaultClientOptions() *ClientOptions {
	return &ClientOptions{
		BaseURL:        DefaultBaseURL,
		Timeout:        30 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
	}
}

// QuickGO fetches annotations from the QuickGO service. Server errors and network
// failures are retried with exponential backoff, client errors (4xx) are not.
// It is safe for concurrent use.
type QuickGO struct {
	o      ClientOptions
	client *http.Client
	log    *zap.Logger
}

// NewQuickGO returns a client with the given options. A nil o means the default options.
func NewQuickGO(o *ClientOptions) *QuickGO {
	if o == nil {
		o = DefaultClientOptions()
	}
	q := &QuickGO{o: *o, client: o.HTTPClient, log: o.Logger}
	if q.o.BaseURL == "" {
		q.o.BaseURL = DefaultBaseURL
	}
	if q.client == nil {
		q.client = http.DefaultClient
	}
	if q.log == nil {
		q.log = zap.NewNop()
	}
	return q
}

func (q *QuickGO) url(uniprotID string) string {
	v := url.Values{}
	v.Set("protein", uniprotID)
	v.Set("format", "tsv")
	return q.o.BaseURL + "?" + v.Encode()
}

// StatusError is returned when the service answers with an unexpected status.
type StatusError struct {
	Code      int
	UniprotID string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("protfun/ontology: QuickGO answered %d %s for %s", e.Code, http.StatusText(e.Code), e.UniprotID)
}

// Temporary reports whether the request can be retried.
func (e *StatusError) Temporary() bool { return e.Code >= 500 }

// get does one request.
func (q *QuickGO) get(ctx context.Context, uniprotID string) ([]string, error) {
	if q.o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.o.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.url(uniprotID), nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "text/tab-separated-values")
	resp, err := q.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		serr := &StatusError{Code: resp.StatusCode, UniprotID: uniprotID}
		if !serr.Temporary() {
			return nil, backoff.Permanent(serr)
		}
		return nil, serr
	}
	ids, err := ParseTSV(resp.Body)
	if err != nil {
		//a truncated body is worth another try.
		return nil, err
	}
	return ids, nil
}

// Fetch returns the GO ids annotated to uniprotID, or []string{Unknown} if there are none.
func (q *QuickGO) Fetch(ctx context.Context, uniprotID string) ([]string, error) {
	if uniprotID == "" {
		return nil, protfun.NewError(nil, "ontology.QuickGO.Fetch", "empty UniProt accession")
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = q.o.InitialBackoff
	if q.o.MaxBackoff > 0 {
		b.MaxInterval = q.o.MaxBackoff
	}
	b.MaxElapsedTime = 0 //the number of retries is the limit
	var ids []string
	op := func() error {
		var err error
		ids, err = q.get(ctx, uniprotID)
		return err
	}
	notify := func(err error, d time.Duration) {
		q.log.Warn("GO lookup failed, retrying", zap.String("uniprot", uniprotID), zap.Duration("in", d), zap.Error(err))
	}
	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, q.o.MaxRetries), ctx), notify)
	if err != nil {
		return nil, err
	}
	q.log.Debug("fetched GO ids", zap.String("uniprot", uniprotID), zap.Strings("go", ids))
	return ids, nil
}
