// Copyright 2020 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package job_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netkernel/igmp/pkg/igmp/job"
)

func TestJobFires(t *testing.T) {
	fired := make(chan struct{})
	j := job.New(func() { close(fired) })

	j.Schedule(10 * time.Millisecond)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("job did not fire")
	}
}

func TestIsArmedFalseAfterNaturalFire(t *testing.T) {
	fired := make(chan struct{})
	j := job.New(func() { close(fired) })

	j.Schedule(10 * time.Millisecond)
	require.True(t, j.IsArmed())

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("job did not fire")
	}
	j.Flush()

	assert.False(t, j.IsArmed(), "a job must report itself disarmed once its scheduled firing has happened naturally, not only after an explicit Cancel")
}

func TestJobCancelBeforeFire(t *testing.T) {
	var called int32
	j := job.New(func() { atomic.AddInt32(&called, 1) })

	j.Schedule(time.Hour)
	require.True(t, j.Cancel())
	j.Flush()
	assert.Equal(t, int32(0), atomic.LoadInt32(&called))
}

func TestJobRescheduleCancelsPrevious(t *testing.T) {
	var mu sync.Mutex
	var fireCount int
	j := job.New(func() {
		mu.Lock()
		fireCount++
		mu.Unlock()
	})

	j.Schedule(time.Hour)
	j.Schedule(5 * time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, 1, fireCount)
	mu.Unlock()
}

func TestJobCancelTooLate(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	j := job.New(func() {
		close(started)
		<-release
	})

	j.Schedule(time.Millisecond)
	<-started
	assert.False(t, j.Cancel())
	close(release)
	j.Flush()
}

func TestRescheduleIfSoonerKeepsSoonerSchedule(t *testing.T) {
	var fireCount int32
	j := job.New(func() { atomic.AddInt32(&fireCount, 1) })

	require.True(t, j.RescheduleIfSooner(20*time.Millisecond))
	// A later due time should not displace the sooner one.
	require.False(t, j.RescheduleIfSooner(time.Hour))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fireCount))
}

func TestRescheduleIfSoonerRearmsAfterNaturalFire(t *testing.T) {
	var fireCount int32
	j := job.New(func() { atomic.AddInt32(&fireCount, 1) })

	require.True(t, j.RescheduleIfSooner(5*time.Millisecond))
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(1), atomic.LoadInt32(&fireCount))

	// The job's internal timer is still non-nil with a stale, past due time
	// at this point; RescheduleIfSooner must still be able to re-arm it.
	require.True(t, j.RescheduleIfSooner(5*time.Millisecond))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&fireCount))
}

func TestRescheduleIfSoonerReplacesLaterSchedule(t *testing.T) {
	j := job.New(func() {})

	require.True(t, j.RescheduleIfSooner(time.Hour))
	require.True(t, j.RescheduleIfSooner(5*time.Millisecond))

	due, armed := j.Due()
	require.True(t, armed)
	assert.WithinDuration(t, time.Now().Add(5*time.Millisecond), due, 2*time.Second)
}
