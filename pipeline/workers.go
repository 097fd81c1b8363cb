package pipeline

import (
	"context"
	"sync"
	"time"

	"jatri-ovijog-backend/email"
	"jatri-ovijog-backend/metrics"

	"github.com/apex/log"
)

// Pool bounds the number of LLM calls running at once so slow provider
// responses cannot stall the request-serving goroutines en masse.
type Pool struct {
	sem chan struct{}
}

func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Do runs fn on the pool under a per-call deadline. Acquisition respects the
// caller's context, so a disconnected client stops waiting for a slot.
func (p *Pool) Do(ctx context.Context, kind string, timeout time.Duration, fn func(ctx context.Context) (string, error)) (string, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-p.sem }()

	metrics.WorkerInFlight.Inc()
	defer metrics.WorkerInFlight.Dec()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	out, err := fn(callCtx)
	metrics.LLMDurationSeconds.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMCallsTotal.WithLabelValues(kind, "error").Inc()
		return "", err
	}
	metrics.LLMCallsTotal.WithLabelValues(kind, "ok").Inc()
	return out, nil
}

type mailJob struct {
	to      string
	subject string
	body    string
}

// Dispatcher delivers emails fire-and-forget on a small fixed worker set.
// Enqueue never blocks the request path: when the queue is full the mail is
// dropped and logged.
type Dispatcher struct {
	sender email.Sender
	jobs   chan mailJob
	wg     sync.WaitGroup
}

func NewDispatcher(sender email.Sender, queueSize, workers int) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	if workers < 1 {
		workers = 1
	}
	d := &Dispatcher{
		sender: sender,
		jobs:   make(chan mailJob, queueSize),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.jobs {
		if err := d.sender.Send(job.to, job.subject, job.body); err != nil {
			log.Warnf("failed to send email to %s: %v", job.to, err)
			metrics.EmailsTotal.WithLabelValues("error").Inc()
			continue
		}
		log.Infof("email sent to %s", job.to)
		metrics.EmailsTotal.WithLabelValues("sent").Inc()
	}
}

// Enqueue queues one email for background delivery. Returns false when the
// queue is saturated and the mail was dropped.
func (d *Dispatcher) Enqueue(to, subject, body string) bool {
	select {
	case d.jobs <- mailJob{to: to, subject: subject, body: body}:
		return true
	default:
		log.Warnf("email queue full, dropping mail to %s", to)
		metrics.EmailsTotal.WithLabelValues("dropped").Inc()
		return false
	}
}

// Close stops accepting mail and waits for in-flight sends to finish.
func (d *Dispatcher) Close() {
	close(d.jobs)
	d.wg.Wait()
}
