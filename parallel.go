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

package kagb

import (
	"runtime"
	"sync"
)

// Parallel concurrently calls f for every index in [0, n) using the given
// number of workers (GOMAXPROCS if workers < 1). Indices are distributed
// among workers in strides, so each worker only ever touches its own
// output slots. If any call fails, the remaining work is abandoned and the
// error with the lowest index is returned.
func Parallel(n, workers int, f func(i int) error) error {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		failed  bool
		errIdx  = n
		firstEr error
	)
	wg.Add(workers)
	for p := 0; p < workers; p++ {
		go func(p int) {
			defer wg.Done()
			for i := p; i < n; i += workers {
				mu.Lock()
				stop := failed
				mu.Unlock()
				if stop {
					return
				}
				if err := f(i); err != nil {
					mu.Lock()
					failed = true
					if i < errIdx {
						errIdx, firstEr = i, err
					}
					mu.Unlock()
					return
				}
			}
		}(p)
	}
	wg.Wait()
	return firstEr
}
