package awstags

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi"
	taggingtypes "github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi/types"
	"github.com/moepig/jmx-conf-gen/resources"
)

const providerType = "aws_tagged"

// DefaultResourceTypes are searched when filters.resource_types is not set
var DefaultResourceTypes = []string{"ec2:instance"}

// Provider implements the resources.Provider interface for Jolokia agents
// found through AWS resource tags. The agent URL is read from a tag.
type Provider struct {
	taggingClient ResourceGroupsTaggingAPI
}

// ResourceGroupsTaggingAPI defines the Resource Groups Tagging API interface
type ResourceGroupsTaggingAPI interface {
	GetResources(ctx context.Context, params *resourcegroupstaggingapi.GetResourcesInput, optFns ...func(*resourcegroupstaggingapi.Options)) (*resourcegroupstaggingapi.GetResourcesOutput, error)
}

// NewProvider creates a new tag based provider
func NewProvider() *Provider {
	return &Provider{}
}

// NewProviderWithClient creates a provider using the given tagging client
func NewProviderWithClient(client ResourceGroupsTaggingAPI) *Provider {
	return &Provider{taggingClient: client}
}

// Type returns the connection type handled by this provider
func (p *Provider) Type() string {
	return providerType
}

// ValidateConfig checks if the provider configuration is valid
func (p *Provider) ValidateConfig(cfg resources.ProviderConfig) error {
	if cfg.Region == "" {
		return fmt.Errorf("region is required")
	}
	urlTag, _ := cfg.Filters["url_tag"].(string)
	if urlTag == "" {
		return fmt.Errorf("filters.url_tag is required")
	}
	if _, err := resources.StringMap(cfg.Filters, "tags"); err != nil {
		return err
	}
	if _, err := resources.StringList(cfg.Filters, "resource_types"); err != nil {
		return err
	}
	return nil
}

// Discover returns one connection per tagged resource carrying the URL tag
func (p *Provider) Discover(ctx context.Context, cfg resources.ProviderConfig) ([]resources.Connection, error) {
	slog.Debug("Starting tagged Jolokia discovery", "region", cfg.Region)

	if err := p.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	if p.taggingClient == nil {
		slog.Debug("Loading AWS configuration", "region", cfg.Region)
		awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		p.taggingClient = resourcegroupstaggingapi.NewFromConfig(awsCfg)
	}

	tags, _ := resources.StringMap(cfg.Filters, "tags")
	resourceTypes, _ := resources.StringList(cfg.Filters, "resource_types")
	if len(resourceTypes) == 0 {
		resourceTypes = DefaultResourceTypes
	}
	urlTag := cfg.Filters["url_tag"].(string)
	slog.Debug("Extracted tag filters", "tag_count", len(tags), "tags", tags, "resource_types", resourceTypes)

	mappings, err := p.getResourcesByTags(ctx, resourceTypes, tags)
	if err != nil {
		return nil, err
	}
	if len(mappings) == 0 {
		slog.Info("No resources found matching tag filters", "tags", tags)
		return []resources.Connection{}, nil
	}

	var result []resources.Connection
	for _, mapping := range mappings {
		arn := aws.ToString(mapping.ResourceARN)
		resourceTags := tagsToMap(mapping.Tags)
		endpoint, ok := resourceTags[urlTag]
		if !ok || endpoint == "" {
			slog.Warn("Resource has no Jolokia URL tag", "arn", arn, "url_tag", urlTag)
			continue
		}
		id := resourceIDFromARN(arn)
		result = append(result, resources.Connection{
			Name: cfg.Name + "/" + id,
			URL:  endpoint,
			Tags: resourceTags,
			Metadata: map[string]interface{}{
				"ARN":        arn,
				"ResourceID": id,
				"Region":     cfg.Region,
			},
		})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	slog.Info("Tagged Jolokia discovery completed", "connections", len(result))
	return result, nil
}

// getResourcesByTags pages through GetResources
func (p *Provider) getResourcesByTags(ctx context.Context, resourceTypes []string, tags map[string]string) ([]taggingtypes.ResourceTagMapping, error) {
	input := &resourcegroupstaggingapi.GetResourcesInput{
		ResourceTypeFilters: resourceTypes,
		TagFilters:          buildTagFilters(tags),
	}

	var mappings []taggingtypes.ResourceTagMapping
	for {
		output, err := p.taggingClient.GetResources(ctx, input)
		if err != nil {
			slog.Error("GetResources API call failed", "error", err)
			return nil, fmt.Errorf("failed to get resources by tags: %w", err)
		}
		mappings = append(mappings, output.ResourceTagMappingList...)
		token := aws.ToString(output.PaginationToken)
		if token == "" {
			break
		}
		input.PaginationToken = aws.String(token)
	}

	slog.Debug("GetResources API call succeeded", "resources_count", len(mappings))
	return mappings, nil
}

// buildTagFilters converts a map of tags to AWS TagFilter array in key order
func buildTagFilters(tags map[string]string) []taggingtypes.TagFilter {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tagFilters := []taggingtypes.TagFilter{}
	for _, key := range keys {
		tagFilters = append(tagFilters, taggingtypes.TagFilter{
			Key:    aws.String(key),
			Values: []string{tags[key]},
		})
	}
	return tagFilters
}

func tagsToMap(tags []taggingtypes.Tag) map[string]string {
	out := make(map[string]string, len(tags))
	for _, tag := range tags {
		if tag.Key != nil && tag.Value != nil {
			out[*tag.Key] = *tag.Value
		}
	}
	return out
}

// resourceIDFromARN returns the last segment of the ARN resource part,
// e.g. "i-0abc" for "arn:aws:ec2:region:acct:instance/i-0abc"
func resourceIDFromARN(arn string) string {
	parts := strings.Split(arn, ":")
	last := parts[len(parts)-1]
	if i := strings.LastIndex(last, "/"); i >= 0 {
		return last[i+1:]
	}
	return last
}
