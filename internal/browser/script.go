package browser

// The in-page half of the agent. Everything the agent writes carries a
// data-blissful-tag generation marker so the Go side can tell its own
// mutations apart from the host's.

// installHookJS wires the MutationObserver and the click delegation into
// the page exactly once, and plants the stylesheet. Observed batches and
// control clicks are buffered in window.__blissfulEvents until the Go side
// drains them.
const installHookJS = `
() => {
	const w = window;
	if (w.__blissfulHooked) return true;
	w.__blissfulHooked = true;
	w.__blissfulEvents = [];
	w.__blissfulRowSeq = 0;

	// Control clicks are handled here, not on the buttons themselves, so a
	// host re-render never detaches the handler.
	document.addEventListener('click', (ev) => {
		try {
			const target = ev.target && ev.target.closest ? ev.target.closest('[data-blissful-control]') : null;
			if (!target) return;
			ev.preventDefault();
			ev.stopPropagation();
			w.__blissfulEvents.push({
				type: 'activate',
				ref: target.getAttribute('data-blissful-control') || '',
				ts: Date.now()
			});
		} catch (e) {}
	}, true);

	// One event per observer batch. Each added or removed element
	// contributes its generation tag, or '' when it has none; a batch whose
	// tags are all known agent writes is discarded on the Go side.
	const collectTags = (tags, nodes) => {
		for (const node of nodes) {
			if (!node || node.nodeType !== 1) continue;
			if (tags.length >= 50) return;
			const tag = node.getAttribute ? (node.getAttribute('data-blissful-tag') || '') : '';
			tags.push(tag);
		}
	};
	const obs = new MutationObserver((mutations) => {
		try {
			const tags = [];
			for (const m of mutations) {
				if (m.type !== 'childList') continue;
				collectTags(tags, m.addedNodes);
				collectTags(tags, m.removedNodes);
			}
			w.__blissfulEvents.push({ type: 'mutation', tags, ts: Date.now() });
		} catch (e) {}
	});
	obs.observe(document.body || document.documentElement, { childList: true, subtree: true });

	if (!document.getElementById('blissful-style')) {
		const style = document.createElement('style');
		style.id = 'blissful-style';
		style.setAttribute('data-blissful-tag', 'blissful-style');
		style.textContent = [
			'.blissful-btn { margin-left: 6px; padding: 2px 8px; border-radius: 4px; border: 1px solid #666;',
			'  background: #2a2a2a; color: #eee; font-size: 12px; cursor: pointer; }',
			'.blissful-btn:hover { background: #3a3a3a; }',
			'.blissful-pending { opacity: 0.6; cursor: wait; }',
			'.blissful-success { border-color: #4caf50; color: #4caf50; }',
			'.blissful-failure { border-color: #f44336; color: #f44336; }',
			'#blissful-toasts { position: fixed; top: 60px; right: 16px; z-index: 99999; }',
			'.blissful-toast { margin-bottom: 8px; padding: 10px 14px; border-radius: 4px; color: #fff;',
			'  font-size: 13px; max-width: 360px; box-shadow: 0 2px 8px rgba(0,0,0,0.4); }',
			'.blissful-toast-success { background: #2e7d32; }',
			'.blissful-toast-info { background: #1565c0; }',
			'.blissful-toast-warning { background: #ef6c00; }',
			'.blissful-toast-error { background: #c62828; }'
		].join('\n');
		(document.head || document.documentElement).appendChild(style);
	}
	return true;
}
`

// drainEventsJS hands the buffered events to the Go side and resets the
// buffer.
const drainEventsJS = `
() => {
	const buf = Array.isArray(window.__blissfulEvents) ? window.__blissfulEvents : [];
	window.__blissfulEvents = [];
	return buf;
}
`

// snapshotJS tags candidate rows with a stable data-blissful-row reference
// and serializes a pruned tree: only the rows and their descendants, never
// the whole document. Row refs survive across snapshots as long as the
// element does, which is what makes injection idempotent.
const snapshotJS = `
() => {
	const w = window;
	const ROW_ATTR = 'data-blissful-row';
	const KEEP_ATTRS = ['href', 'data-icon', 'data-blissful-row', 'data-blissful-control', 'data-blissful-tag'];
	const MAX_DEPTH = 8;
	const MAX_CHILDREN = 50;

	const isCandidateRow = (el) => {
		if (el.querySelector('a[href^="/album/"]')) return true;
		if (el.querySelector('[class*="trackTitle"]')) return true;
		return false;
	};

	const rows = [];
	for (const el of document.querySelectorAll('tr, [class*="Row"]')) {
		if (!isCandidateRow(el)) continue;
		// Skip wrappers that contain another candidate row; the innermost
		// element wins so a control lands next to its track, not around the
		// whole table.
		let inner = false;
		for (const other of el.querySelectorAll('tr, [class*="Row"]')) {
			if (other !== el && isCandidateRow(other)) { inner = true; break; }
		}
		if (inner) continue;
		if (!el.getAttribute(ROW_ATTR)) {
			el.setAttribute(ROW_ATTR, 'row_' + (++w.__blissfulRowSeq));
		}
		rows.push(el);
	}

	const serialize = (el, depth) => {
		const node = { tag: el.tagName.toLowerCase() };
		if (el.id) node.id = el.id;
		if (el.classList && el.classList.length) node.classes = Array.from(el.classList);
		const attrs = {};
		let hasAttrs = false;
		for (const name of KEEP_ATTRS) {
			const v = el.getAttribute(name);
			if (v !== null) { attrs[name] = v; hasAttrs = true; }
		}
		if (hasAttrs) node.attrs = attrs;

		const kids = [];
		if (depth < MAX_DEPTH) {
			for (const child of el.children) {
				if (kids.length >= MAX_CHILDREN) break;
				kids.push(serialize(child, depth + 1));
			}
		}
		if (kids.length) {
			node.children = kids;
		} else {
			const text = (el.textContent || '').trim();
			if (text) node.text = text.slice(0, 200);
		}
		return node;
	};

	return { tag: 'body', children: rows.map((el) => serialize(el, 0)) };
}
`

// injectControlJS plants one control button inside its row. Returns "ok",
// "exists" when the row already has a control, or "missing" when the row
// is gone.
const injectControlJS = `
(rowRef, ref, tag, label) => {
	const row = document.querySelector('[data-blissful-row="' + rowRef + '"]');
	if (!row) return 'missing';
	if (row.querySelector('[data-blissful-control]')) return 'exists';

	const btn = document.createElement('button');
	btn.setAttribute('data-blissful-control', ref);
	btn.setAttribute('data-blissful-tag', tag);
	btn.className = 'blissful-btn blissful-idle';
	btn.type = 'button';
	btn.textContent = label;

	// Last cell when the row is tabular, else the row itself.
	const host = row.lastElementChild && row.tagName === 'TR' ? row.lastElementChild : row;
	host.appendChild(btn);
	return 'ok';
}
`

// setControlStateJS restyles an existing control. Returns false when the
// control is gone.
const setControlStateJS = `
(ref, className, label, disabled) => {
	const btn = document.querySelector('[data-blissful-control="' + ref + '"]');
	if (!btn) return false;
	btn.className = className;
	btn.textContent = label;
	btn.disabled = disabled;
	return true;
}
`

// removeControlJS deletes a control outright. Removing an already-removed
// control is not an error.
const removeControlJS = `
(ref) => {
	const btn = document.querySelector('[data-blissful-control="' + ref + '"]');
	if (btn) btn.remove();
	return true;
}
`

// showToastJS appends a transient toast to the agent's own container. The
// container and every toast carry the static generation tag so they never
// feed back into the scan loop.
const showToastJS = `
(level, message) => {
	let box = document.getElementById('blissful-toasts');
	if (!box) {
		box = document.createElement('div');
		box.id = 'blissful-toasts';
		box.setAttribute('data-blissful-tag', 'blissful-toast');
		document.body.appendChild(box);
	}
	while (box.children.length >= 3) {
		box.removeChild(box.firstElementChild);
	}
	const toast = document.createElement('div');
	toast.setAttribute('data-blissful-tag', 'blissful-toast');
	toast.className = 'blissful-toast blissful-toast-' + level;
	toast.textContent = message;
	box.appendChild(toast);
	setTimeout(() => { try { toast.remove(); } catch (e) {} }, 4000);
	return true;
}
`
