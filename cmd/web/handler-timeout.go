package main

// timeoutBody is served by http.TimeoutHandler when a handler misses its deadline.
const timeoutBody = `<!doctype html>
<html lang="en">
<head><title>Timeout</title></head>
<body>
<h1>Request timed out</h1>
<p>Your changes may not have been saved.</p>
<p><a href="">Try again</a></p>
</body>
</html>
`
