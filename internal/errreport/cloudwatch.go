package errreport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwltypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
)

// LogsAPI is the subset of the CloudWatch Logs client CloudWatchSink needs.
type LogsAPI interface {
	CreateLogStream(ctx context.Context, in *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
	PutLogEvents(ctx context.Context, in *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
}

// CloudWatchSink writes reports as JSON log events to one log stream,
// creating the stream on first use.
type CloudWatchSink struct {
	client LogsAPI
	group  string
	stream string

	once    sync.Once
	initErr error
}

var _ Sink = (*CloudWatchSink)(nil)

// NewCloudWatchSink creates a sink for group/stream.
func NewCloudWatchSink(client LogsAPI, group, stream string) *CloudWatchSink {
	return &CloudWatchSink{client: client, group: group, stream: stream}
}

func (s *CloudWatchSink) ensureStream(ctx context.Context) error {
	s.once.Do(func() {
		_, err := s.client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
			LogGroupName:  aws.String(s.group),
			LogStreamName: aws.String(s.stream),
		})
		var exists *cwltypes.ResourceAlreadyExistsException
		if err != nil && !errors.As(err, &exists) {
			s.initErr = fmt.Errorf("CreateLogStream %s/%s: %w", s.group, s.stream, err)
		}
	})
	return s.initErr
}

func (s *CloudWatchSink) Send(ctx context.Context, r Report) error {
	if err := s.ensureStream(ctx); err != nil {
		return err
	}
	msg, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if _, err := s.client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  aws.String(s.group),
		LogStreamName: aws.String(s.stream),
		LogEvents: []cwltypes.InputLogEvent{
			{
				Message:   aws.String(string(msg)),
				Timestamp: aws.Int64(r.OccurredAt.UnixMilli()),
			},
		},
	}); err != nil {
		return fmt.Errorf("PutLogEvents: %w", err)
	}
	return nil
}
