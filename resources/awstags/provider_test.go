package awstags

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi"
	taggingtypes "github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi/types"
	"github.com/moepig/jmx-conf-gen/resources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockResourceGroupsTaggingClient is a mock implementation of ResourceGroupsTaggingAPI
type MockResourceGroupsTaggingClient struct {
	mock.Mock
}

func (m *MockResourceGroupsTaggingClient) GetResources(ctx context.Context, params *resourcegroupstaggingapi.GetResourcesInput, optFns ...func(*resourcegroupstaggingapi.Options)) (*resourcegroupstaggingapi.GetResourcesOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resourcegroupstaggingapi.GetResourcesOutput), args.Error(1)
}

func mapping(arn string, tags map[string]string) taggingtypes.ResourceTagMapping {
	m := taggingtypes.ResourceTagMapping{ResourceARN: aws.String(arn)}
	for k, v := range tags {
		m.Tags = append(m.Tags, taggingtypes.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	return m
}

func validConfig() resources.ProviderConfig {
	return resources.ProviderConfig{
		Name:   "prod",
		Region: "ap-northeast-1",
		Filters: map[string]interface{}{
			"url_tag": "jolokia-url",
			"tags": map[string]interface{}{
				"env": "production",
			},
		},
	}
}

func TestProvider_Type(t *testing.T) {
	assert.Equal(t, "aws_tagged", NewProvider().Type())
}

func TestProvider_ValidateConfig(t *testing.T) {
	provider := NewProvider()

	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, provider.ValidateConfig(validConfig()))
	})

	t.Run("missing region", func(t *testing.T) {
		cfg := validConfig()
		cfg.Region = ""
		err := provider.ValidateConfig(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "region is required")
	})

	t.Run("missing url tag", func(t *testing.T) {
		cfg := validConfig()
		delete(cfg.Filters, "url_tag")
		err := provider.ValidateConfig(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "filters.url_tag is required")
	})

	t.Run("invalid tags filter type", func(t *testing.T) {
		cfg := validConfig()
		cfg.Filters["tags"] = "invalid"
		err := provider.ValidateConfig(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "filters.tags must be a map")
	})

	t.Run("invalid resource types", func(t *testing.T) {
		cfg := validConfig()
		cfg.Filters["resource_types"] = "ec2:instance"
		err := provider.ValidateConfig(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "filters.resource_types must be a list")
	})
}

func TestProvider_Discover(t *testing.T) {
	t.Run("connections from tagged resources across pages", func(t *testing.T) {
		client := new(MockResourceGroupsTaggingClient)
		client.On("GetResources", mock.Anything, mock.MatchedBy(func(in *resourcegroupstaggingapi.GetResourcesInput) bool {
			return in.PaginationToken == nil &&
				assert.ObjectsAreEqual([]string{"ec2:instance"}, in.ResourceTypeFilters) &&
				len(in.TagFilters) == 1 && aws.ToString(in.TagFilters[0].Key) == "env"
		}), mock.Anything).Return(&resourcegroupstaggingapi.GetResourcesOutput{
			ResourceTagMappingList: []taggingtypes.ResourceTagMapping{
				mapping("arn:aws:ec2:ap-northeast-1:123456789012:instance/i-0b", map[string]string{
					"env": "production", "jolokia-url": "http://10.0.0.2:8778/jolokia",
				}),
			},
			PaginationToken: aws.String("page-2"),
		}, nil).Once()
		client.On("GetResources", mock.Anything, mock.MatchedBy(func(in *resourcegroupstaggingapi.GetResourcesInput) bool {
			return aws.ToString(in.PaginationToken) == "page-2"
		}), mock.Anything).Return(&resourcegroupstaggingapi.GetResourcesOutput{
			ResourceTagMappingList: []taggingtypes.ResourceTagMapping{
				mapping("arn:aws:ec2:ap-northeast-1:123456789012:instance/i-0a", map[string]string{
					"env": "production", "jolokia-url": "http://10.0.0.1:8778/jolokia",
				}),
				mapping("arn:aws:ec2:ap-northeast-1:123456789012:instance/i-0c", map[string]string{
					"env": "production",
				}),
			},
		}, nil).Once()

		provider := NewProviderWithClient(client)
		conns, err := provider.Discover(context.Background(), validConfig())
		require.NoError(t, err)
		require.Len(t, conns, 2)

		assert.Equal(t, "prod/i-0a", conns[0].Name)
		assert.Equal(t, "http://10.0.0.1:8778/jolokia", conns[0].URL)
		assert.Equal(t, "production", conns[0].Tags["env"])
		assert.Equal(t, "i-0a", conns[0].Metadata["ResourceID"])
		assert.Equal(t, "prod/i-0b", conns[1].Name)
		client.AssertExpectations(t)
	})

	t.Run("custom resource types", func(t *testing.T) {
		client := new(MockResourceGroupsTaggingClient)
		client.On("GetResources", mock.Anything, mock.MatchedBy(func(in *resourcegroupstaggingapi.GetResourcesInput) bool {
			return assert.ObjectsAreEqual([]string{"ecs:task"}, in.ResourceTypeFilters)
		}), mock.Anything).Return(&resourcegroupstaggingapi.GetResourcesOutput{}, nil).Once()

		cfg := validConfig()
		cfg.Filters["resource_types"] = []interface{}{"ecs:task"}
		conns, err := NewProviderWithClient(client).Discover(context.Background(), cfg)
		require.NoError(t, err)
		assert.Empty(t, conns)
		client.AssertExpectations(t)
	})

	t.Run("api failure", func(t *testing.T) {
		client := new(MockResourceGroupsTaggingClient)
		client.On("GetResources", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, errors.New("throttled")).Once()

		_, err := NewProviderWithClient(client).Discover(context.Background(), validConfig())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get resources by tags")
	})
}

func TestResourceIDFromARN(t *testing.T) {
	tests := []struct {
		arn  string
		want string
	}{
		{"arn:aws:ec2:us-east-1:123456789012:instance/i-0abc", "i-0abc"},
		{"arn:aws:ecs:us-east-1:123456789012:task/cluster/0123", "0123"},
		{"arn:aws:elasticbeanstalk:us-east-1:123456789012:environment:app", "app"},
	}
	for _, tt := range tests {
		t.Run(tt.arn, func(t *testing.T) {
			assert.Equal(t, tt.want, resourceIDFromARN(tt.arn))
		})
	}
}

func TestBuildTagFilters(t *testing.T) {
	filters := buildTagFilters(map[string]string{"b": "2", "a": "1"})
	require.Len(t, filters, 2)
	assert.Equal(t, "a", aws.ToString(filters[0].Key))
	assert.Equal(t, []string{"1"}, filters[0].Values)
	assert.Empty(t, buildTagFilters(nil))
}
