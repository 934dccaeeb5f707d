// Package policy provides SSM-based tool profile registry loading for
// Sentinel. Registries are stored in AWS Systems Manager Parameter Store
// and fetched on demand using the SSMLoader type.
package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"

	sentinelerrors "github.com/aureus-sentinel/bridge/errors"
)

// ErrRegistryNotFound is returned when the requested registry parameter
// does not exist in SSM Parameter Store.
var ErrRegistryNotFound = errors.New("tool profile registry not found")

// SSMAPI defines the SSM operations used by SSMLoader.
// This interface enables testing with mock implementations.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMLoader fetches tool profile registries from AWS SSM Parameter Store.
// It implements Loader.
type SSMLoader struct {
	client SSMAPI
}

// NewSSMLoader creates a new SSMLoader using the provided AWS configuration.
// The caller is responsible for providing a properly configured aws.Config
// (typically via config.LoadDefaultConfig).
func NewSSMLoader(cfg aws.Config) *SSMLoader {
	return &SSMLoader{client: ssm.NewFromConfig(cfg)}
}

// NewSSMLoaderWithClient creates an SSMLoader with a custom SSM client.
// This is primarily used for testing with mock clients.
func NewSSMLoaderWithClient(client SSMAPI) *SSMLoader {
	return &SSMLoader{client: client}
}

// Load fetches a tool profile registry from SSM Parameter Store by
// parameter name. It returns ErrRegistryNotFound (wrapped) if the
// parameter does not exist. The parameter is fetched with decryption
// enabled to support SecureString parameters.
func (l *SSMLoader) Load(ctx context.Context, parameterName string) (*Registry, error) {
	output, err := l.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(parameterName),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var notFound *types.ParameterNotFound
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%s: %w", parameterName, ErrRegistryNotFound)
		}
		return nil, sentinelerrors.WrapSSMError(err, parameterName)
	}

	return ParseRegistry([]byte(*output.Parameter.Value))
}

// FileLoader loads a tool profile registry from the local filesystem,
// used for development and for environments that mount the registry as
// a config file instead of fetching it from SSM.
type FileLoader struct {
	read func(path string) ([]byte, error)
}

// NewFileLoader creates a FileLoader using the given file-reading
// function (typically os.ReadFile).
func NewFileLoader(read func(path string) ([]byte, error)) *FileLoader {
	return &FileLoader{read: read}
}

// Load reads and parses the registry at the given filesystem path.
func (l *FileLoader) Load(ctx context.Context, path string) (*Registry, error) {
	data, err := l.read(path)
	if err != nil {
		return nil, fmt.Errorf("read tool profile registry %s: %w", path, err)
	}
	return ParseRegistry(data)
}
