package compiler

// Built-in node types.
const (
	NodeTypeStart             = "start"
	NodeTypeEnd               = "end"
	NodeTypeNavigate          = "navigate"
	NodeTypeGoBack            = "go_back"
	NodeTypeGoForward         = "go_forward"
	NodeTypeReload            = "reload"
	NodeTypeClick             = "click"
	NodeTypeDoubleClick       = "double_click"
	NodeTypeRightClick        = "right_click"
	NodeTypeHover             = "hover"
	NodeTypeFocus             = "focus"
	NodeTypeType              = "type"
	NodeTypeClearInput        = "clear_input"
	NodeTypePressKey          = "press_key"
	NodeTypeSelectOption      = "select_option"
	NodeTypeCheck             = "check"
	NodeTypeUncheck           = "uncheck"
	NodeTypeUploadFile        = "upload_file"
	NodeTypeScroll            = "scroll"
	NodeTypeDragAndDrop       = "drag_and_drop"
	NodeTypeWait              = "wait"
	NodeTypeWaitForSelector   = "wait_for_selector"
	NodeTypeWaitForNavigation = "wait_for_navigation"
	NodeTypeScreenshot        = "screenshot"
	NodeTypeExtractText       = "extract_text"
	NodeTypeExtractAttribute  = "extract_attribute"
	NodeTypeReadTable         = "read_table"
	NodeTypeWriteTable        = "write_table"
	NodeTypeSetVariable       = "set_variable"
	NodeTypeLog               = "log"
	NodeTypeEvaluate          = "evaluate"
	NodeTypeNewTab            = "new_tab"
	NodeTypeSwitchTab         = "switch_tab"
	NodeTypeCloseTab          = "close_tab"
	NodeTypeSetViewport       = "set_viewport"
	NodeTypeSetCookie         = "set_cookie"
	NodeTypeClearCookies      = "clear_cookies"
	NodeTypeHTTPRequest       = "http_request"
	NodeTypeAIAgent           = "ai_agent"
	NodeTypeAssertText        = "assert_text"
)

func builtinGenerators() []Generator {
	return []Generator{
		{Type: NodeTypeStart, Template: `// workflow start`},
		{Type: NodeTypeEnd, Template: `// end of chain`},
		{
			Type:     NodeTypeNavigate,
			Template: `await page.goto({{js .S.url}}, { waitUntil: {{js (str .S.waitUntil "load")}}, timeout: {{num .S.timeout 30000}} });`,
			Schema:   requireStrings("url"),
		},
		{Type: NodeTypeGoBack, Template: `await page.goBack({ timeout: {{num .S.timeout 30000}} });`},
		{Type: NodeTypeGoForward, Template: `await page.goForward({ timeout: {{num .S.timeout 30000}} });`},
		{Type: NodeTypeReload, Template: `await page.reload({ timeout: {{num .S.timeout 30000}} });`},
		{
			Type:     NodeTypeClick,
			Template: `await page.click({{js .S.selector}}, { timeout: {{num .S.timeout 30000}} });`,
			Schema:   requireStrings("selector"),
		},
		{
			Type:     NodeTypeDoubleClick,
			Template: `await page.dblclick({{js .S.selector}}, { timeout: {{num .S.timeout 30000}} });`,
			Schema:   requireStrings("selector"),
		},
		{
			Type:     NodeTypeRightClick,
			Template: `await page.click({{js .S.selector}}, { button: "right", timeout: {{num .S.timeout 30000}} });`,
			Schema:   requireStrings("selector"),
		},
		{
			Type:     NodeTypeHover,
			Template: `await page.hover({{js .S.selector}});`,
			Schema:   requireStrings("selector"),
		},
		{
			Type:     NodeTypeFocus,
			Template: `await page.focus({{js .S.selector}});`,
			Schema:   requireStrings("selector"),
		},
		{
			Type:     NodeTypeType,
			Template: `await page.type({{js .S.selector}}, {{js (str .S.value "")}}, { delay: {{num .S.delay 0}} });`,
			Schema:   requireStrings("selector"),
		},
		{
			Type:     NodeTypeClearInput,
			Template: `await page.fill({{js .S.selector}}, "");`,
			Schema:   requireStrings("selector"),
		},
		{
			Type:     NodeTypePressKey,
			Template: `await page.keyboard.press({{js .S.key}});`,
			Schema:   requireStrings("key"),
		},
		{
			Type:     NodeTypeSelectOption,
			Template: `await page.selectOption({{js .S.selector}}, {{js .S.value}});`,
			Schema:   requireStrings("selector"),
		},
		{
			Type:     NodeTypeCheck,
			Template: `await page.check({{js .S.selector}});`,
			Schema:   requireStrings("selector"),
		},
		{
			Type:     NodeTypeUncheck,
			Template: `await page.uncheck({{js .S.selector}});`,
			Schema:   requireStrings("selector"),
		},
		{
			Type:     NodeTypeUploadFile,
			Template: `await page.setInputFiles({{js .S.selector}}, {{js .S.path}});`,
			Schema:   requireStrings("selector", "path"),
		},
		{
			Type:     NodeTypeScroll,
			Template: `await page.evaluate(([x, y]) => window.scrollBy(x, y), [{{num .S.x 0}}, {{num .S.y 500}}]);`,
		},
		{
			Type:     NodeTypeDragAndDrop,
			Template: `await page.dragAndDrop({{js .S.source}}, {{js .S.target}});`,
			Schema:   requireStrings("source", "target"),
		},
		{Type: NodeTypeWait, Template: `await page.waitForTimeout({{num .S.duration 1000}});`},
		{
			Type:     NodeTypeWaitForSelector,
			Template: `await page.waitForSelector({{js .S.selector}}, { state: {{js (str .S.state "visible")}}, timeout: {{num .S.timeout 30000}} });`,
			Schema:   requireStrings("selector"),
		},
		{Type: NodeTypeWaitForNavigation, Template: `await page.waitForLoadState({{js (str .S.state "load")}});`},
		{
			Type:     NodeTypeScreenshot,
			Template: `await page.screenshot({ path: {{js (str .S.path "screenshot.png")}}, fullPage: {{bool .S.fullPage false}} });`,
		},
		{
			Type:     NodeTypeExtractText,
			Template: `vars[{{js .S.variable}}] = await page.textContent({{js .S.selector}});`,
			Schema:   requireStrings("selector", "variable"),
		},
		{
			Type:     NodeTypeExtractAttribute,
			Template: `vars[{{js .S.variable}}] = await page.getAttribute({{js .S.selector}}, {{js .S.attribute}});`,
			Schema:   requireStrings("selector", "attribute", "variable"),
		},
		{
			Type: NodeTypeReadTable,
			Template: `vars[{{js .S.variable}}] = await page.$$eval({{js .S.selector}} + " tr", (rows) =>
  rows.map((row) => Array.from(row.querySelectorAll("th,td")).map((cell) => cell.innerText.trim())));`,
			Schema: requireStrings("selector", "variable"),
		},
		{
			Type: NodeTypeWriteTable,
			Template: `await page.$$eval({{js .S.selector}} + " tr", (rows, data) => {
  data.forEach((values, i) => {
    const cells = rows[i] ? rows[i].querySelectorAll("input,textarea") : [];
    values.forEach((value, j) => {
      if (!cells[j]) return;
      cells[j].value = value;
      cells[j].dispatchEvent(new Event("input", { bubbles: true }));
    });
  });
}, {{js .S.rows}});`,
			Schema: map[string]any{
				"type":     "object",
				"required": []any{"selector", "rows"},
				"properties": map[string]any{
					"selector": nonEmptyString(),
					"rows": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "array"},
					},
				},
			},
		},
		{
			Type:     NodeTypeSetVariable,
			Template: `vars[{{js .S.name}}] = {{js .S.value}};`,
			Schema:   requireStrings("name"),
		},
		{Type: NodeTypeLog, Template: `console.log({{js .S.message}});`},
		{
			Type:     NodeTypeEvaluate,
			Template: `vars[{{js (str .S.variable "result")}}] = await page.evaluate({{js .S.script}});`,
			Schema:   requireStrings("script"),
		},
		{
			Type: NodeTypeNewTab,
			Template: `page = await context.newPage();
{{- if .S.url}}
await page.goto({{js .S.url}});
{{- end}}`,
		},
		{
			Type: NodeTypeSwitchTab,
			Template: `page = context.pages()[{{num .S.index 0}}];
await page.bringToFront();`,
		},
		{
			Type: NodeTypeCloseTab,
			Template: `await page.close();
page = context.pages()[context.pages().length - 1];`,
		},
		{
			Type:     NodeTypeSetViewport,
			Template: `await page.setViewportSize({ width: {{num .S.width 1280}}, height: {{num .S.height 720}} });`,
		},
		{
			Type:     NodeTypeSetCookie,
			Template: `await context.addCookies([{ name: {{js .S.name}}, value: {{js (str .S.value "")}}, url: {{js (str .S.url "")}} || page.url() }]);`,
			Schema:   requireStrings("name"),
		},
		{Type: NodeTypeClearCookies, Template: `await context.clearCookies();`},
		{
			Type: NodeTypeHTTPRequest,
			Template: `{
  const response = await fetch({{js .S.url}}, { method: {{js (str .S.method "GET")}}, headers: {{js .S.headers}} || {}, body: {{js .S.body}} || undefined });
  vars[{{js (str .S.variable "response")}}] = { status: response.status, body: await response.text() };
}`,
			Schema: requireStrings("url"),
		},
		{
			Type:     NodeTypeAIAgent,
			Template: `vars[{{js (str .S.variable "agent")}}] = await helpers.agent({ page, prompt: {{js .S.prompt}}, model: {{js (str .S.model "")}} || undefined, maxSteps: {{num .S.maxSteps 10}} });`,
			Schema:   requireStrings("prompt"),
		},
		{
			Type: NodeTypeAssertText,
			Template: `{
  const actual = await page.textContent({{js .S.selector}});
  if (!actual || !actual.includes({{js .S.expected}})) {
    throw new Error("assertion failed on node " + {{js .ID}} + ": expected " + {{js .S.expected}} + " in " + {{js .S.selector}});
  }
}`,
			Schema: requireStrings("selector", "expected"),
		},
	}
}

func nonEmptyString() map[string]any {
	return map[string]any{"type": "string", "minLength": 1}
}

func requireStrings(names ...string) map[string]any {
	required := make([]any, 0, len(names))
	properties := make(map[string]any, len(names))

	for _, name := range names {
		required = append(required, name)
		properties[name] = nonEmptyString()
	}

	return map[string]any{
		"type":       "object",
		"required":   required,
		"properties": properties,
	}
}
