package sniper

// MutationBinding is the window function name the injected observer calls to
// signal a structural change on the result list.
const MutationBinding = "__sniperMutated"

// jsScanCandidates enumerates the direct-action buttons of the live search
// result list in DOM order. Each entry carries the row's stable data-id (or a
// positional fallback), the surrounding row text for the Action Filter, the
// disabled state, and the button's center in page coordinates for a trusted
// click.
func jsScanCandidates() string {
	return wrapJSEval(`
var rows = document.querySelectorAll(".resultset .row");
var candidates = [];
for (var i = 0; i < rows.length; i++) {
  var row = rows[i];
  var btn = row.querySelector("button.direct-btn");
  if (!btn) {
    var btns = row.querySelectorAll("button");
    for (var j = 0; j < btns.length; j++) {
      var label = (btns[j].textContent || "").toLowerCase();
      if (label.indexOf("travel") >= 0 || label.indexOf("hideout") >= 0 || label.indexOf("whisper") >= 0) {
        btn = btns[j];
        break;
      }
    }
  }
  if (!btn) continue;
  var key = row.getAttribute("data-id") || ("row-" + i);
  var rect = btn.getBoundingClientRect();
  candidates.push({
    key: key,
    button_text: (btn.textContent || "").trim(),
    row_text: (row.textContent || "").trim().slice(0, 400),
    disabled: !!btn.disabled,
    x: rect.left + rect.width / 2,
    y: rect.top + rect.height / 2
  });
}
return JSON.stringify({ok:true,data:{candidates:candidates}});`)
}

// jsInstallObserver attaches a MutationObserver to the result list that calls
// the CDP binding on every structural change. Installation is idempotent; the
// host coalesces notifications, so no throttling happens here.
func jsInstallObserver() string {
	return wrapJSEval(`
if (window.__sniperObserver) {
  return JSON.stringify({ok:true,data:{status:"already-installed"}});
}
if (typeof window.` + MutationBinding + ` !== "function") {
  return JSON.stringify({ok:false,error_code:"EVAL_FAILURE",error_message:"mutation binding not exposed"});
}
var container = document.querySelector(".resultset") || document.body;
var observer = new MutationObserver(function() {
  window.` + MutationBinding + `("mutated");
});
observer.observe(container, {childList: true, subtree: true});
window.__sniperObserver = observer;
return JSON.stringify({ok:true,data:{status:"installed"}});`)
}

// jsRemoveObserver disconnects the observer so the tab is left clean for
// manual use after detach.
func jsRemoveObserver() string {
	return wrapJSEval(`
if (window.__sniperObserver) {
  window.__sniperObserver.disconnect();
  delete window.__sniperObserver;
}
return JSON.stringify({ok:true,data:{status:"removed"}});`)
}

func wrapJSEval(body string) string {
	return `(function(){
try {
` + body + `
} catch (err) {
return JSON.stringify({ok:false,error_code:"EVAL_FAILURE",error_message:String(err && err.message || err)});
}
})()`
}
