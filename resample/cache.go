/*
Copyright © 2018 the K-AGB authors.
This file is part of K-AGB.

K-AGB is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

K-AGB is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with K-AGB.  If not, see <http://www.gnu.org/licenses/>.
*/

package resample

import (
	"context"
	"fmt"
	"runtime"

	"github.com/ctessum/requestcache"
	"github.com/spatialmodel/kagb"
	"github.com/spatialmodel/kagb/internal/hash"
)

// Cache memoizes resampling results so that each field is only
// resampled once per target grid and policy, even when it is requested
// concurrently. Results are keyed by the contents of the source field,
// so a changed raster is resampled again even under the same name.
type Cache struct {
	c *requestcache.Cache
}

type request struct {
	src    kagb.Field
	target kagb.GridSpec
	policy Policy
}

// NewCache returns a cache holding up to maxEntries results in memory.
func NewCache(maxEntries int) *Cache {
	return &Cache{
		c: requestcache.NewCache(func(ctx context.Context, payload interface{}) (interface{}, error) {
			r := payload.(request)
			return Resample(r.src, r.target, r.policy)
		}, runtime.GOMAXPROCS(-1), requestcache.Deduplicate(), requestcache.Memory(maxEntries)),
	}
}

// Resample returns src, which is identified by name, resampled onto the
// target grid. The returned field must not be modified.
func (c *Cache) Resample(ctx context.Context, name string, src kagb.Field, target kagb.GridSpec, policy Policy) (kagb.Field, error) {
	key := fmt.Sprintf("%s_%s_%s_%s_%v", name, hash.Hash(src.Grid), hash.Floats(src.Values()), hash.Hash(target), policy)
	r := c.c.NewRequest(ctx, request{src: src, target: target, policy: policy}, key)
	result, err := r.Result()
	if err != nil {
		return kagb.Field{}, err
	}
	return result.(kagb.Field), nil
}
