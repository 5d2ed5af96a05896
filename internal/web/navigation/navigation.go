// Package navigation provides the menu and breadcrumbs of a page.
package navigation

import "github.com/oidc-demo/oidc-demo-web/internal/web/session"

// RoleAdmin is the role that unlocks the user administration menu entry.
const RoleAdmin = "admin"

// BreadcrumbItem represents a single breadcrumb link.
type BreadcrumbItem struct {
	Title  string
	URL    string
	Active bool
}

// MenuItem is one entry of the header menu.
type MenuItem struct {
	Title   string
	URL     string
	Section string
	Active  bool
}

// menuEntry is a MenuItem plus the role needed to see it, "" for every signed in user.
type menuEntry struct {
	item MenuItem
	role string
}

var menu = []menuEntry{
	{item: MenuItem{Title: "Products", URL: "/products", Section: "products"}},
	{item: MenuItem{Title: "Users", URL: "/users", Section: "users"}, role: RoleAdmin},
	{item: MenuItem{Title: "Profile", URL: "/profile", Section: "profile"}},
}

// Context represents the navigation context for a page.
type Context struct {
	ActiveSection string
	ActivePage    string
	Breadcrumbs   []BreadcrumbItem
	Menu          []MenuItem
	PageTitle     string
}

// NewContext creates a new navigation context.
func NewContext(pageTitle, activeSection, activePage string) *Context {
	return &Context{
		PageTitle:     pageTitle,
		ActiveSection: activeSection,
		ActivePage:    activePage,
		Breadcrumbs:   make([]BreadcrumbItem, 0),
		Menu:          make([]MenuItem, 0),
	}
}

// AddBreadcrumb adds a breadcrumb item to the context.
func (c *Context) AddBreadcrumb(title, url string, active bool) *Context {
	c.Breadcrumbs = append(c.Breadcrumbs, BreadcrumbItem{
		Title:  title,
		URL:    url,
		Active: active,
	})

	return c
}

// WithMenu fills the menu for the signed in session. Anonymous visitors get no menu.
// Hiding an entry is cosmetic, the backend enforces roles on its own.
func (c *Context) WithMenu(data *session.Data) *Context {
	c.Menu = c.Menu[:0]

	if data == nil {
		return c
	}

	for _, e := range menu {
		if e.role != "" && !data.Identity.HasRole(e.role) {
			continue
		}

		item := e.item
		item.Active = item.Section == c.ActiveSection
		c.Menu = append(c.Menu, item)
	}

	return c
}

// IsActive checks if the given section and page match the current context.
func (c *Context) IsActive(section, page string) bool {
	return c.ActiveSection == section && c.ActivePage == page
}

// IsSectionActive checks if the given section is active.
func (c *Context) IsSectionActive(section string) bool {
	return c.ActiveSection == section
}
