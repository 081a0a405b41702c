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
	"errors"
	"net/url"
)

// RedactError redacts the URL carried by a *url.Error. Presigned object
// links hold credentials in their query string. Other errors are returned
// unchanged.
func RedactError(err error) error {
	var urlErr *url.Error
	if err == nil || !errors.As(err, &urlErr) {
		return err
	}
	u, parseErr := url.Parse(urlErr.URL)
	if parseErr != nil {
		return err
	}
	RedactURL(u)
	urlErr.URL = u.Redacted()
	return urlErr
}

// RedactURL replaces every query value of u with "redacted".
func RedactURL(u *url.URL) {
	if u == nil {
		return
	}
	query := u.Query()
	if len(query) == 0 {
		return
	}
	for k := range query {
		query.Set(k, "redacted")
	}
	u.RawQuery = query.Encode()
}
