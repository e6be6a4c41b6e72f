/*
 * workers.go, part of protfun.
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

// Package workers runs independent units of work on a bounded number of gorutines.
package workers

import "runtime"

// Parallel calls f(i) for i in [0,n), distributing the calls among at most cpus
// gorutines. Each call must write to memory no other call touches. It returns
// once all calls are done.
func Parallel(n, cpus int, f func(i int)) {
	if cpus <= 0 {
		cpus = runtime.NumCPU()
	}
	if cpus > n {
		cpus = n
	}
	if cpus <= 1 {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}
	jobs := make(chan int, n)
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	done := make(chan bool)
	for w := 0; w < cpus; w++ {
		go func() {
			for i := range jobs {
				f(i)
			}
			done <- true
		}()
	}
	for w := 0; w < cpus; w++ {
		<-done
	}
}
