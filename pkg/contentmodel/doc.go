// Package contentmodel maps nodes of a hierarchically typed content tree onto
// typed Go models.
//
// Models are registered for content types through a Service. When a node is
// resolved, the service walks the node's type hierarchy (resource types first,
// then the physical node types), picks the models registered at the closest
// level, instantiates one and populates its fields from the node's
// properties, children and references.
//
// Field Bindings
//
// Model fields are described by the `content` struct tag:
//
//	type Teaser struct {
//	    Title    string               `content:"jcr:title"`
//	    Page     contentmodel.Node    `content:",this"`
//	    Link     *Page                `content:"link,reference,append=/jcr:content"`
//	    Items    []*Item              `content:"items,children,below=jcr:content"`
//	    Author   *Person              `content:"/content/people/${author}"`
//	    internal string               `content:"-"`
//	}
//
// Exported fields are mapped by default using the field name as path.
// Unexported fields are only mapped when they carry an explicit tag. Paths
// containing ${name} placeholders are resolved through the configured
// PlaceholderResolver chain; unresolved placeholders are kept verbatim.
//
// Lifecycle Methods
//
// Zero-argument methods whose names start with BeforeMapping or AfterMapping
// are invoked around field population, in name order. They may return an
// error, which is logged and otherwise ignored.
//
// Caching
//
// Registry lookups are cached until the next registration change or an
// explicit ClearLookupCaches call. Resolved models may additionally be cached
// for the duration of one request by attaching a RequestCache to the context
// with WithRequestCache.
//
// Implementations of the content tree (in-memory, PostgreSQL) live in the
// tree subpackages; YAML snapshots of trees are handled by package snapshot.
package contentmodel
