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

package inflate

// pager regroups output fragments into fixed-size pages.
type pager struct {
	size  int
	cur   []byte
	pages [][]byte
}

func (p *pager) write(b []byte) {
	for len(b) > 0 {
		if p.cur == nil {
			p.cur = make([]byte, 0, p.size)
		}
		n := min(len(b), p.size-len(p.cur))
		p.cur = append(p.cur, b[:n]...)
		b = b[n:]
		if len(p.cur) == p.size {
			p.pages = append(p.pages, p.cur)
			p.cur = nil
		}
	}
}

func (p *pager) writeByte(c byte) {
	if p.cur == nil {
		p.cur = make([]byte, 0, p.size)
	}
	p.cur = append(p.cur, c)
	if len(p.cur) == p.size {
		p.pages = append(p.pages, p.cur)
		p.cur = nil
	}
}

// take hands over the completed pages. The short trailing page is only
// included when flush is set.
func (p *pager) take(flush bool) [][]byte {
	if flush && len(p.cur) > 0 {
		p.pages = append(p.pages, p.cur)
		p.cur = nil
	}
	pages := p.pages
	p.pages = nil
	return pages
}
