package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"

	"github.com/staffmanagement/authservice/internal/config"
)

// cognitoAPI is the subset of the Cognito user pool API used by the backend.
type cognitoAPI interface {
	AdminAddUserToGroup(
		ctx context.Context, in *cip.AdminAddUserToGroupInput, opts ...func(*cip.Options),
	) (*cip.AdminAddUserToGroupOutput, error)
	AdminRemoveUserFromGroup(
		ctx context.Context, in *cip.AdminRemoveUserFromGroupInput, opts ...func(*cip.Options),
	) (*cip.AdminRemoveUserFromGroupOutput, error)
	AdminListGroupsForUser(
		ctx context.Context, in *cip.AdminListGroupsForUserInput, opts ...func(*cip.Options),
	) (*cip.AdminListGroupsForUserOutput, error)
	ListUsers(ctx context.Context, in *cip.ListUsersInput, opts ...func(*cip.Options)) (*cip.ListUsersOutput, error)
}

// Cognito is a Directory backed by an AWS Cognito user pool. Keys are pool usernames.
type Cognito struct {
	api        cognitoAPI
	userPoolID string
}

// NewCognito loads the AWS configuration and creates the user pool client.
// Static credentials are used when configured, the default credential chain otherwise.
func NewCognito(ctx context.Context, cfg config.Cognito) (*Cognito, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}

	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := cip.NewFromConfig(awsCfg, func(o *cip.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return newCognito(client, cfg.UserPoolID), nil
}

func newCognito(api cognitoAPI, userPoolID string) *Cognito {
	return &Cognito{api: api, userPoolID: userPoolID}
}

// cognitoErr maps UserNotFoundException to ErrIdentityNotFound.
func cognitoErr(err error) error {
	if err == nil {
		return nil
	}

	var notFound *types.UserNotFoundException
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s", ErrIdentityNotFound, notFound.ErrorMessage())
	}

	return err
}

// AddMemberToGroup implements Directory.
func (c *Cognito) AddMemberToGroup(ctx context.Context, key, group string) error {
	_, err := c.api.AdminAddUserToGroup(ctx, &cip.AdminAddUserToGroupInput{
		UserPoolId: aws.String(c.userPoolID),
		Username:   aws.String(key),
		GroupName:  aws.String(group),
	})

	return cognitoErr(err)
}

// RemoveMemberFromGroup implements Directory.
func (c *Cognito) RemoveMemberFromGroup(ctx context.Context, key, group string) error {
	_, err := c.api.AdminRemoveUserFromGroup(ctx, &cip.AdminRemoveUserFromGroupInput{
		UserPoolId: aws.String(c.userPoolID),
		Username:   aws.String(key),
		GroupName:  aws.String(group),
	})

	return cognitoErr(err)
}

// FindIdentityKeyByAttribute implements Directory using a ListUsers filter.
func (c *Cognito) FindIdentityKeyByAttribute(ctx context.Context, attribute, value string) (string, error) {
	switch attribute {
	case AttributeSubject, AttributeEmail, AttributeUsername:
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownAttribute, attribute)
	}

	filter := fmt.Sprintf("%s = %q", attribute, strings.ReplaceAll(value, `"`, ""))

	out, err := c.api.ListUsers(ctx, &cip.ListUsersInput{
		UserPoolId: aws.String(c.userPoolID),
		Filter:     aws.String(filter),
		Limit:      aws.Int32(2), //nolint:mnd
	})
	if err != nil {
		return "", cognitoErr(err)
	}

	switch len(out.Users) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrIdentityNotFound, filter)
	case 1:
		return aws.ToString(out.Users[0].Username), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrMultipleIdentities, filter)
	}
}

// ListGroupsForMember implements Directory.
func (c *Cognito) ListGroupsForMember(ctx context.Context, key string) ([]string, error) {
	var (
		groups    []string
		nextToken *string
	)

	for {
		out, err := c.api.AdminListGroupsForUser(ctx, &cip.AdminListGroupsForUserInput{
			UserPoolId: aws.String(c.userPoolID),
			Username:   aws.String(key),
			NextToken:  nextToken,
		})
		if err != nil {
			return nil, cognitoErr(err)
		}

		for _, g := range out.Groups {
			groups = append(groups, aws.ToString(g.GroupName))
		}

		if aws.ToString(out.NextToken) == "" {
			return groups, nil
		}

		nextToken = out.NextToken
	}
}
