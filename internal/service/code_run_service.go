package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/codemeet-api/internal/dto"
	"github.com/noah-isme/codemeet-api/pkg/coderunner"
)

// ErrRunnerUnavailable indicates no execution host could be started.
var ErrRunnerUnavailable = errors.New("code execution environment unavailable")

// defaultEntryPoint is used when neither the submission nor the starter
// code reveals a function name.
const defaultEntryPoint = "solution"

// CodeRunner grades source against test cases.
type CodeRunner interface {
	Run(ctx context.Context, req coderunner.Request) (coderunner.RunReport, error)
}

// CodeRunService exposes graded runs over HTTP and websockets.
type CodeRunService interface {
	Run(ctx context.Context, subject string, payload dto.CodeRunRequest, console coderunner.ConsoleSink) (dto.CodeRunResponse, error)
	Submit(ctx context.Context, subject string, questionID uint, payload dto.SubmitQuestionRequest) (dto.SubmitQuestionResponse, error)
}

// CodeRunConfig bounds caller supplied timeouts.
type CodeRunConfig struct {
	MaxTimeout time.Duration
}

type codeRunService struct {
	runner    CodeRunner
	questions QuestionService
	events    RunEventPublisher
	validator *validator.Validate
	logger    zerolog.Logger
	config    CodeRunConfig
}

// NewCodeRunService constructs the code run service. events may be nil.
func NewCodeRunService(runner CodeRunner, questions QuestionService, events RunEventPublisher, validate *validator.Validate, logger zerolog.Logger, cfg CodeRunConfig) CodeRunService {
	return &codeRunService{
		runner:    runner,
		questions: questions,
		events:    events,
		validator: validate,
		logger:    logger.With().Str("component", "code_run_service").Logger(),
		config:    cfg,
	}
}

func (s *codeRunService) Run(ctx context.Context, subject string, payload dto.CodeRunRequest, console coderunner.ConsoleSink) (dto.CodeRunResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.CodeRunResponse{}, err
	}

	report, err := s.execute(ctx, subject, coderunner.Request{
		Language:     payload.Language,
		Source:       payload.Source,
		FunctionName: payload.FunctionName,
		Tests:        dto.ToTestCases(payload.Tests),
		Timeout:      s.timeout(payload.TimeoutMS),
		Console:      console,
	}, 0)
	if err != nil {
		return dto.CodeRunResponse{}, err
	}
	return dto.NewCodeRunResponse(report), nil
}

// Submit grades the source against the question's examples and records the
// solve when every example passes.
func (s *codeRunService) Submit(ctx context.Context, subject string, questionID uint, payload dto.SubmitQuestionRequest) (dto.SubmitQuestionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmitQuestionResponse{}, err
	}

	question, err := s.questions.Get(ctx, questionID)
	if err != nil {
		return dto.SubmitQuestionResponse{}, err
	}

	tests := make([]coderunner.TestCase, 0, len(question.Examples))
	for _, example := range question.Examples {
		tests = append(tests, coderunner.TestCase{Input: example.Input, Expected: example.Output})
	}

	functionName := payload.FunctionName
	if functionName == "" {
		functionName = starterEntryPoint(payload.Language, question.StarterCode)
	}

	report, err := s.execute(ctx, subject, coderunner.Request{
		Language:     payload.Language,
		Source:       payload.Source,
		FunctionName: functionName,
		Tests:        tests,
	}, questionID)
	if err != nil {
		return dto.SubmitQuestionResponse{}, err
	}

	response := dto.SubmitQuestionResponse{
		CodeRunResponse: dto.NewCodeRunResponse(report),
		QuestionID:      questionID,
	}
	if report.Passed() {
		if _, err := s.questions.MarkSolved(ctx, subject, questionID); err != nil {
			s.logger.Warn().Err(err).Str("subject", subject).Uint("question_id", questionID).Msg("failed to record solved question")
		} else {
			response.Solved = true
		}
	}

	return response, nil
}

func (s *codeRunService) execute(ctx context.Context, subject string, req coderunner.Request, questionID uint) (coderunner.RunReport, error) {
	report, err := s.runner.Run(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return coderunner.RunReport{}, ctxErr
		}
		s.logger.Error().Err(err).Str("language", req.Language).Msg("code run failed to start")
		return coderunner.RunReport{}, fmt.Errorf("%w: %v", ErrRunnerUnavailable, err)
	}

	if s.events != nil {
		event := RunEvent{
			Type:       EventRunCompleted,
			Subject:    subject,
			Language:   req.Language,
			QuestionID: questionID,
			Tests:      len(req.Tests),
			Passed:     report.Passed(),
			ErrorKind:  string(report.ErrorKind),
			DurationMS: report.Duration.Milliseconds(),
		}
		if err := s.events.Publish(ctx, event); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish run completed event")
		}
	}

	return report, nil
}

// timeout converts the requested budget, capping it at the configured maximum.
// An absent budget leaves the language default in place.
func (s *codeRunService) timeout(ms *int) *time.Duration {
	if ms == nil {
		return nil
	}
	timeout := time.Duration(*ms) * time.Millisecond
	if s.config.MaxTimeout > 0 && (timeout <= 0 || timeout > s.config.MaxTimeout) {
		timeout = s.config.MaxTimeout
	}
	return coderunner.Timeout(timeout)
}

func starterEntryPoint(language string, starter dto.StarterCode) string {
	lang, err := coderunner.ParseLanguage(language)
	if err != nil {
		return defaultEntryPoint
	}
	source := starter.JavaScript
	if lang == coderunner.LanguagePython {
		source = starter.Python
	}
	signature := coderunner.DetectSignature(lang, source, defaultEntryPoint)
	return signature.Name
}
