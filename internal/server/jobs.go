package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	apperrors "github.com/copyleftdev/nlpsolver/internal/errors"
	"github.com/copyleftdev/nlpsolver/internal/logging"
	"github.com/copyleftdev/nlpsolver/internal/optimization"
	"github.com/copyleftdev/nlpsolver/internal/optimization/problems"
	"github.com/copyleftdev/nlpsolver/internal/optimization/solver"
)

var (
	// ErrJobNotFound is returned for an unknown job id.
	ErrJobNotFound = errors.New("solve job not found")
	// ErrJobFinished is returned when cancelling a job that already stopped.
	ErrJobFinished = errors.New("solve job already finished")
	// ErrInvalidRequest wraps every problem with a solve request.
	ErrInvalidRequest = errors.New("invalid solve request")
)

// JobStatus is the lifecycle state of a solve job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the job can no longer change.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// SolveRequest starts a job. Options, when present, override the service
// defaults field by field.
type SolveRequest struct {
	Problem problems.Spec   `json:"problem"`
	Options json.RawMessage `json:"options,omitempty"`
}

// Job is one asynchronous solve. All fields are guarded by the server mutex.
type Job struct {
	ID          string
	Status      JobStatus
	Problem     string
	Method      solver.Method
	StartTime   time.Time
	EndTime     *time.Time
	LastUpdated time.Time

	// Iteration and Objective track the running solve.
	Iteration int
	Objective float64

	Solution *optimization.Solution
	Error    string

	cancel context.CancelFunc
	done   chan struct{}
}

// Done is closed once the job reached a terminal status.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// JobView is the JSON form of a job. Non-finite values are omitted.
type JobView struct {
	ID          string      `json:"id"`
	Status      JobStatus   `json:"status"`
	Problem     string      `json:"problem"`
	Method      string      `json:"method"`
	StartTime   string      `json:"start_time"`
	EndTime     string      `json:"end_time,omitempty"`
	LastUpdated string      `json:"last_update"`
	Iteration   int         `json:"iteration"`
	Objective   *float64    `json:"objective,omitempty"`
	Result      *ResultView `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// ResultView is the JSON form of a solution.
type ResultView struct {
	Status             string    `json:"status"`
	Converged          bool      `json:"converged"`
	BestObjectiveValue *float64  `json:"best_objective_value,omitempty"`
	Objective          *float64  `json:"objective,omitempty"`
	X                  []float64 `json:"x"`
	Iterations         int       `json:"iterations"`
}

func (j *Job) view() JobView {
	v := JobView{
		ID:          j.ID,
		Status:      j.Status,
		Problem:     j.Problem,
		Method:      string(j.Method),
		StartTime:   j.StartTime.Format(time.RFC3339),
		LastUpdated: j.LastUpdated.Format(time.RFC3339),
		Iteration:   j.Iteration,
		Error:       j.Error,
	}
	if j.Iteration > 0 {
		v.Objective = finite(j.Objective)
	}
	if j.EndTime != nil {
		v.EndTime = j.EndTime.Format(time.RFC3339)
	}
	if sol := j.Solution; sol != nil {
		v.Result = &ResultView{
			Status:             sol.Status.String(),
			Converged:          sol.Converged(),
			BestObjectiveValue: finite(sol.BestObjectiveValue),
			Objective:          finite(sol.Objective),
			X:                  append([]float64(nil), sol.X...),
			Iterations:         sol.Iterations,
		}
	}
	return v
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// progress is the iteration logger that publishes a running job's state.
type progress struct {
	server *Server
	job    *Job
}

func (p *progress) Log(state *optimization.State, _ bool) {
	s := p.server
	s.mu.Lock()
	defer s.mu.Unlock()

	p.job.Iteration = state.Iteration
	p.job.Objective = state.Sense.Sign() * state.Objective
	p.job.LastUpdated = time.Now()
}

// options resolves the solver options of a request on top of the service
// defaults and applies the service iteration cap.
func (s *Server) options(raw json.RawMessage) (solver.Options, error) {
	opts := s.cfg.Solver
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return solver.Options{}, fmt.Errorf("%w: options: %v", ErrInvalidRequest, err)
		}
	}

	if limit := s.cfg.Solve.MaxIterations; limit > 0 {
		if opts.MaxIterations <= 0 || opts.MaxIterations > limit {
			opts.MaxIterations = limit
		}
	}
	return opts, nil
}

// start validates req and launches its job.
func (s *Server) start(req SolveRequest) (*Job, error) {
	p, err := problems.Build(req.Problem)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	opts, err := s.options(req.Options)
	if err != nil {
		return nil, err
	}
	return s.submit(req.Problem.Name, p, opts), nil
}

// submit registers a job for p and runs it in the background.
func (s *Server) submit(name string, p optimization.Problem, opts solver.Options) *Job {
	ctx, cancel := context.WithCancel(s.ctx)
	now := time.Now()
	job := &Job{
		ID:          fmt.Sprintf("solve_%d", s.seq.Add(1)),
		Status:      JobPending,
		Problem:     name,
		Method:      opts.Method,
		StartTime:   now,
		LastUpdated: now,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	if job.Method == "" {
		job.Method = solver.MethodBFGS
	}

	s.mu.Lock()
	s.prune(now)
	s.jobs[job.ID] = job
	s.mu.Unlock()

	s.metrics.started.Inc()
	s.logger.Info("Solve accepted", map[string]interface{}{
		"job_id":  job.ID,
		"problem": job.Problem,
		"method":  string(job.Method),
	})

	s.wg.Add(1)
	go s.run(ctx, job, p, opts)

	return job
}

// run waits for a worker slot and solves p.
func (s *Server) run(ctx context.Context, job *Job, p optimization.Problem, opts solver.Options) {
	defer s.wg.Done()
	defer close(job.done)
	defer job.cancel()

	select {
	case s.workers <- struct{}{}:
		defer func() { <-s.workers }()
	case <-ctx.Done():
		s.finish(job, nil, ctx.Err())
		return
	}

	s.mu.Lock()
	job.Status = JobRunning
	job.LastUpdated = time.Now()
	s.mu.Unlock()

	s.metrics.running.Inc()
	defer s.metrics.running.Dec()

	start := time.Now()
	sol, err := s.solve(ctx, job, p, opts)
	s.metrics.duration.Observe(time.Since(start).Seconds())

	s.finish(job, sol, err)
}

// solve runs the solver, turning a panic inside the problem into an error.
func (s *Server) solve(ctx context.Context, job *Job, p optimization.Problem, opts solver.Options) (sol *optimization.Solution, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = apperrors.FromPanic(rec).WithOperation("solve").WithComponent("server")
		}
	}()

	zl := logging.NewZapLogger(s.logger.WithField("job_id", job.ID))
	loggers := []solver.IterationLogger{
		solver.NewZapLogger(zl, opts.Logging.Frequency),
		&progress{server: s, job: job},
	}
	if opts.Logging.Stdout {
		loggers = append(loggers, solver.NewWriterLogger(s.stdout, opts.Logging.Frequency))
	}
	slv, err := solver.New(p, opts,
		solver.WithLogger(zl),
		solver.WithIterationLoggers(loggers...),
	)
	if err != nil {
		return nil, err
	}
	return slv.Solve(ctx)
}

// finish records the outcome of a job.
func (s *Server) finish(job *Job, sol *optimization.Solution, err error) {
	now := time.Now()
	outcome := "failed"

	s.mu.Lock()
	job.EndTime = &now
	job.LastUpdated = now
	switch {
	case errors.Is(err, context.Canceled):
		job.Status = JobCancelled
		outcome = optimization.StatusCancelled.String()
	case err != nil:
		job.Status = JobFailed
		job.Error = err.Error()
	default:
		job.Solution = sol
		job.Iteration = sol.Iterations
		job.Objective = sol.BestObjectiveValue
		job.Status = JobCompleted
		if sol.Status == optimization.StatusCancelled {
			job.Status = JobCancelled
		}
		outcome = sol.Status.String()
	}
	status := job.Status
	s.mu.Unlock()

	s.metrics.finished.WithLabelValues(outcome).Inc()
	if sol != nil {
		s.metrics.iterations.Observe(float64(sol.Iterations))
	}

	fields := map[string]interface{}{
		"job_id":  job.ID,
		"status":  string(status),
		"outcome": outcome,
	}
	if err != nil && status == JobFailed {
		s.logger.WithError(err).Error("Solve failed", fields)
		return
	}
	s.logger.Info("Solve finished", fields)
}

// cancel requests cancellation of a pending or running job.
func (s *Server) cancel(id string) error {
	s.mu.RLock()
	job, ok := s.jobs[id]
	var status JobStatus
	if ok {
		status = job.Status
	}
	s.mu.RUnlock()

	if !ok {
		return ErrJobNotFound
	}
	if status.Terminal() {
		return fmt.Errorf("%w: status %s", ErrJobFinished, status)
	}

	job.cancel()
	s.logger.Info("Solve cancellation requested", map[string]interface{}{"job_id": id})
	return nil
}

// status returns a snapshot of a job.
func (s *Server) status(id string) (JobView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return JobView{}, ErrJobNotFound
	}
	return job.view(), nil
}

// prune drops finished jobs older than the retention window. The caller
// holds s.mu.
func (s *Server) prune(now time.Time) {
	retention := s.cfg.Solve.Retention
	if retention <= 0 {
		return
	}
	for id, job := range s.jobs {
		if job.EndTime != nil && now.Sub(*job.EndTime) > retention {
			delete(s.jobs, id)
		}
	}
}
