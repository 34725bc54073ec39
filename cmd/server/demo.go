package main

import (
	"context"
	"time"

	"github.com/tendant/content-model/pkg/contentmodel"
	"github.com/tendant/content-model/pkg/contentmodel/tree/memory"
)

const demoModule = "demo"

// Page is the demo model of app/page nodes
type Page struct {
	Title    string                    `content:"jcr:title" json:"title"`
	Created  time.Time                 `content:"jcr:created" json:"created"`
	Tags     []string                  `content:"tags" json:"tags,omitempty"`
	Teasers  []*Teaser                 `content:"teasers,children" json:"teasers,omitempty"`
	Related  []contentmodel.Properties `content:"related,reference" json:"related,omitempty"`
	Site     string                    `content:"${siteRoot}/jcr:title" json:"site,omitempty"`
	Rendered string                    `json:"rendered"`
}

// AfterMapping derives the rendered title once all fields are populated
func (p *Page) AfterMapping() {
	p.Rendered = p.Title
	if p.Site != "" && p.Site != p.Title {
		p.Rendered = p.Title + " | " + p.Site
	}
}

// Teaser is the demo model of core/teaser nodes and their subtypes
type Teaser struct {
	Text string `content:"text" json:"text"`
	Link string `content:"link" json:"link,omitempty"`
}

// demoPlaceholders resolves the placeholders used by the demo models
func demoPlaceholders(name string) (string, bool) {
	if name == "siteRoot" {
		return "/content/home", true
	}
	return "", false
}

// registerDemoModels registers the demo models as one module
func registerDemoModels(svc contentmodel.Service) error {
	_, err := svc.RegisterModule(demoModule,
		contentmodel.ModelDefinition{Types: []string{"app/page"}, Source: contentmodel.NewSource[Page](demoModule, "page")},
		contentmodel.ModelDefinition{Types: []string{"core/teaser"}, Source: contentmodel.NewSource[Teaser](demoModule, "teaser")},
	)
	return err
}

// seedDemoContent fills a memory tree without /content with demo pages
func seedDemoContent(ctx context.Context, tree *memory.Tree) error {
	if node, err := tree.Get(ctx, "/content"); err != nil || node != nil {
		return err
	}

	if err := tree.DefineResourceType("app/teaser", "core/teaser"); err != nil {
		return err
	}

	unstructured := &contentmodel.NodeType{Primary: contentmodel.NodeTypeUnstructured}
	nodes := []struct {
		path string
		spec memory.NodeSpec
	}{
		{"/content/home", memory.NodeSpec{ResourceType: "app/page", NodeType: unstructured, Properties: contentmodel.Properties{
			"jcr:title":   "Home",
			"jcr:created": "2024-01-15T10:00:00Z",
			"tags":        []string{"start", "welcome"},
			"related":     []string{"/content/about"},
		}}},
		{"/content/home/teasers", memory.NodeSpec{NodeType: unstructured}},
		{"/content/home/teasers/first", memory.NodeSpec{ResourceType: "app/teaser", NodeType: unstructured, Properties: contentmodel.Properties{
			"text": "Read about us",
			"link": "/content/about",
		}}},
		{"/content/home/teasers/second", memory.NodeSpec{ResourceType: "app/teaser", NodeType: unstructured, Properties: contentmodel.Properties{
			"text": "Latest news",
		}}},
		{"/content/about", memory.NodeSpec{ResourceType: "app/page", NodeType: unstructured, Properties: contentmodel.Properties{
			"jcr:title":   "About",
			"jcr:created": "2024-02-01",
			"related":     []string{"/content/home", "/content/missing"},
		}}},
	}
	for _, n := range nodes {
		if err := tree.Put(n.path, n.spec); err != nil {
			return err
		}
	}
	return nil
}
